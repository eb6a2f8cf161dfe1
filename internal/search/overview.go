package search

import "sort"

// Bucket is one overview bucket: the set of filter indices (ordered,
// deduplicated) present among the matches that fall within it.
type Bucket struct {
	RowStart uint64
	RowEnd   uint64
	Filters  []int
}

// Overview partitions the matches whose row lies in [from, to] (or the
// whole map, if the range is absent) into datasetLen buckets, per spec
// §4.7's Map operation: "dataset_len > rows_total returns one bucket per
// existing row; dataset_len = 0 returns empty."
func (m *Map) Overview(datasetLen int, from, to *uint64, rowsTotal uint64) []Bucket {
	if datasetLen <= 0 {
		return nil
	}

	start, end := uint64(0), rowsTotal
	if rowsTotal > 0 {
		end = rowsTotal - 1
	}
	if from != nil {
		start = *from
	}
	if to != nil && *to < end {
		end = *to
	}
	if rowsTotal == 0 || start > end {
		return nil
	}

	span := end - start + 1
	if uint64(datasetLen) > span {
		datasetLen = int(span)
	}
	bucketSize := span / uint64(datasetLen)
	if bucketSize == 0 {
		bucketSize = 1
	}

	buckets := make([]Bucket, datasetLen)
	for i := range buckets {
		bs := start + uint64(i)*bucketSize
		be := bs + bucketSize - 1
		if i == datasetLen-1 || be > end {
			be = end
		}
		buckets[i] = Bucket{RowStart: bs, RowEnd: be}
	}

	for _, match := range m.Matches {
		if match.Row < start || match.Row > end {
			continue
		}
		idx := bucketIndexFor(match.Row, start, bucketSize, datasetLen)
		buckets[idx].addFilter(match.FilterIdx)
	}
	return buckets
}

func bucketIndexFor(row, start, bucketSize uint64, datasetLen int) int {
	idx := int((row - start) / bucketSize)
	if idx >= datasetLen {
		idx = datasetLen - 1
	}
	return idx
}

func (b *Bucket) addFilter(idx int) {
	for _, existing := range b.Filters {
		if existing == idx {
			return
		}
	}
	b.Filters = append(b.Filters, idx)
	sort.Ints(b.Filters)
}
