package batch

// Chunks partitions items into groups of size, preserving order. Every chunk
// has exactly size items except possibly the last, which holds the remainder.
// Zero items or a non-positive size yields nil.
func Chunks[T any](items []T, size int) [][]T {
	if len(items) == 0 || size <= 0 {
		return nil
	}

	n := (len(items) + size - 1) / size
	chunks := make([][]T, 0, n)
	for start := 0; start < len(items); start += size {
		end := start + size
		if end > len(items) {
			end = len(items)
		}
		chunks = append(chunks, items[start:end])
	}
	return chunks
}
