package pools

import (
	"bufio"
	"io"
	"sync"
	"sync/atomic"
)

// Default bufio sizes for connection I/O
const (
	DefaultReaderSize = 4 * 1024
	DefaultWriterSize = 4 * 1024
)

// BufioPool recycles bufio readers and writers between connections. A
// reader or writer is reset onto its new stream on Get and detached on Put,
// so nothing from a previous connection is reachable afterwards.
type BufioPool struct {
	readers sync.Pool
	writers sync.Pool

	// Statistics
	readerGets atomic.Uint64
	writerGets atomic.Uint64
	readerNews atomic.Uint64
	writerNews atomic.Uint64
}

// NewBufioPool creates a pool producing readers and writers of the given sizes
func NewBufioPool(readerSize, writerSize int) *BufioPool {
	if readerSize <= 0 {
		readerSize = DefaultReaderSize
	}
	if writerSize <= 0 {
		writerSize = DefaultWriterSize
	}

	bp := &BufioPool{}
	bp.readers.New = func() any {
		bp.readerNews.Add(1)
		return bufio.NewReaderSize(nil, readerSize)
	}
	bp.writers.New = func() any {
		bp.writerNews.Add(1)
		return bufio.NewWriterSize(nil, writerSize)
	}
	return bp
}

// GetReader returns a reader over r
func (bp *BufioPool) GetReader(r io.Reader) *bufio.Reader {
	bp.readerGets.Add(1)
	br := bp.readers.Get().(*bufio.Reader)
	br.Reset(r)
	return br
}

// PutReader returns br to the pool
func (bp *BufioPool) PutReader(br *bufio.Reader) {
	if br == nil {
		return
	}
	br.Reset(nil)
	bp.readers.Put(br)
}

// GetWriter returns a writer over w
func (bp *BufioPool) GetWriter(w io.Writer) *bufio.Writer {
	bp.writerGets.Add(1)
	bw := bp.writers.Get().(*bufio.Writer)
	bw.Reset(w)
	return bw
}

// PutWriter returns bw to the pool
func (bp *BufioPool) PutWriter(bw *bufio.Writer) {
	if bw == nil {
		return
	}
	bw.Reset(nil)
	bp.writers.Put(bw)
}

// Stats returns pool statistics
func (bp *BufioPool) Stats() BufioStats {
	stats := BufioStats{
		ReaderGets: bp.readerGets.Load(),
		WriterGets: bp.writerGets.Load(),
		ReaderNews: bp.readerNews.Load(),
		WriterNews: bp.writerNews.Load(),
	}
	gets := stats.ReaderGets + stats.WriterGets
	if gets > 0 {
		news := stats.ReaderNews + stats.WriterNews
		if news > gets {
			news = gets
		}
		stats.HitRate = float64(gets-news) / float64(gets)
	}
	return stats
}

// BufioStats contains bufio pool statistics
type BufioStats struct {
	ReaderGets uint64  `json:"reader_gets"`
	WriterGets uint64  `json:"writer_gets"`
	ReaderNews uint64  `json:"reader_news"`
	WriterNews uint64  `json:"writer_news"`
	HitRate    float64 `json:"hit_rate"`
}
