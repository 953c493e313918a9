package export

import (
	"context"
	"iter"
)

// Paginator splits a table into batches of at most chunkSize rows.
//
// The offset of the next page advances by the number of rows the last fetch
// actually returned, and the sequence ends early on an empty fetch, so a table
// that shrinks during the export ends cleanly. Rows are only free of
// duplicates and gaps across pages if the fetcher returns a stable order for
// a given offset/limit pair.
type Paginator struct {
	fetcher   PageFetcher
	table     TableDescriptor
	chunkSize uint64
	totalRows uint64
}

func NewPaginator(fetcher PageFetcher, table TableDescriptor, chunkSize, totalRows uint64) (*Paginator, error) {
	if chunkSize < 1 {
		return nil, ErrInvalidChunkSize
	}

	return &Paginator{
		fetcher:   fetcher,
		table:     table,
		chunkSize: chunkSize,
		totalRows: totalRows,
	}, nil
}

// Batches returns the lazy batch sequence. Each call starts again at offset
// zero. A fetch error is yielded once and ends the sequence.
func (p *Paginator) Batches(ctx context.Context) iter.Seq2[*RowBatch, error] {
	return func(yield func(*RowBatch, error) bool) {
		var offset uint64
		for offset < p.totalRows {
			rows, err := p.fetcher.FetchPage(ctx, p.table, p.chunkSize, offset)
			if err != nil {
				yield(nil, err)

				return
			}
			if len(rows) == 0 {
				return
			}
			if !yield(&RowBatch{Offset: offset, Rows: rows}, nil) {
				return
			}
			offset += uint64(len(rows))
		}
	}
}
