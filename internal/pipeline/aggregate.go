package pipeline

// Totals are the per-entity counters for one day.
type Totals struct {
	FileViews       int64
	VideoViews      int64
	ForumViews      int64
	QuizViews       int64
	AssignmentViews int64
	URLViews        int64

	distinct map[int64]struct{}
}

// DistinctActive is the number of distinct counterpart ids seen (users for a
// course pipeline, courses for a student pipeline).
func (t *Totals) DistinctActive() int64 {
	return int64(len(t.distinct))
}

func (t *Totals) markDistinct(id int64) {
	if t.distinct == nil {
		t.distinct = make(map[int64]struct{})
	}
	t.distinct[id] = struct{}{}
}

// Aggregate folds one page of rows into the running totals. Pure in-memory
// accumulation: counting is associative and commutative and the distinct
// metric is a set union, so page boundaries never affect the final totals.
func (p *Pipeline) Aggregate(rows []Row, totals map[int64]*Totals) {
	for _, row := range rows {
		key := p.Key(row)
		t := totals[key]
		if t == nil {
			t = &Totals{}
			totals[key] = t
		}

		switch row.ActivityType {
		case TypeFile:
			t.FileViews++
		case TypeVideo:
			t.VideoViews++
		case TypeForum:
			t.ForumViews++
		case TypeQuiz:
			t.QuizViews++
		case TypeAssignment:
			t.AssignmentViews++
		case TypeURL:
			t.URLViews++
		}

		t.markDistinct(p.Distinct(row))
	}
}
