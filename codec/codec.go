package codec

import (
	"bytes"
	"compress/gzip"
	"compress/zlib"
	"encoding/json"
	"io"
	"sync"

	"github.com/andybalholm/brotli"
	"github.com/cockroachdb/errors"
)

// ContentEncoding is the compression applied to a frame body. It is written
// as the first byte of every frame.
type ContentEncoding byte

const (
	ContentEncodingPlain   ContentEncoding = 0
	ContentEncodingGzip    ContentEncoding = 1
	ContentEncodingDeflate ContentEncoding = 2
	ContentEncodingBrotli  ContentEncoding = 3
)

var (
	ErrUnknownContentEncoding = errors.New("[OFFLOAD] unknown content encoding")
	ErrEmptyFrame             = errors.New("[OFFLOAD] empty frame")
)

var encodingNames = map[string]ContentEncoding{
	"plain":   ContentEncodingPlain,
	"gzip":    ContentEncodingGzip,
	"deflate": ContentEncodingDeflate,
	"brotli":  ContentEncodingBrotli,
}

// ParseContentEncoding maps a config name to a ContentEncoding.
func ParseContentEncoding(name string) (ContentEncoding, error) {
	enc, ok := encodingNames[name]
	if !ok {
		return 0, errors.Wrapf(ErrUnknownContentEncoding, "%q", name)
	}
	return enc, nil
}

func (e ContentEncoding) String() string {
	for name, enc := range encodingNames {
		if enc == e {
			return name
		}
	}
	return "unknown"
}

// Codec turns values into frames: one encoding byte followed by the JSON body,
// compressed with the configured encoding. Frames are decoded with whatever
// encoding their first byte names, so peers may use different encodings.
type Codec struct {
	encoding ContentEncoding

	byteReaderPool   sync.Pool
	bufferPool       sync.Pool
	gzipWriterPool   sync.Pool
	zlibWriterPool   sync.Pool
	brotliWriterPool sync.Pool
}

// New creates a Codec that writes frames with the given encoding.
func New(encoding ContentEncoding) *Codec {
	return &Codec{
		encoding: encoding,
		byteReaderPool: sync.Pool{
			New: func() interface{} {
				return bytes.NewReader(nil)
			},
		},
		gzipWriterPool: sync.Pool{
			New: func() interface{} {
				return gzip.NewWriter(nil)
			},
		},
		zlibWriterPool: sync.Pool{
			New: func() interface{} {
				return zlib.NewWriter(nil)
			},
		},
		brotliWriterPool: sync.Pool{
			New: func() interface{} {
				return brotli.NewWriter(nil)
			},
		},
		bufferPool: sync.Pool{
			New: func() interface{} {
				return new(bytes.Buffer)
			},
		},
	}
}

// Default returns a plain JSON codec.
func Default() *Codec {
	return New(ContentEncodingPlain)
}

// Encoding returns the encoding used by Marshal.
func (c *Codec) Encoding() ContentEncoding {
	return c.encoding
}

// Marshal encodes v into a frame.
func (c *Codec) Marshal(v interface{}) ([]byte, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return nil, errors.Wrap(err, "marshal frame")
	}

	body, err = c.Compress(c.encoding, body)
	if err != nil {
		return nil, err
	}

	frame := make([]byte, 0, len(body)+1)
	frame = append(frame, byte(c.encoding))
	return append(frame, body...), nil
}

// Unmarshal decodes a frame into v.
func (c *Codec) Unmarshal(frame []byte, v interface{}) error {
	if len(frame) == 0 {
		return ErrEmptyFrame
	}

	body, err := c.Uncompress(ContentEncoding(frame[0]), frame[1:])
	if err != nil {
		return err
	}
	return errors.Wrap(json.Unmarshal(body, v), "unmarshal frame")
}

func (c *Codec) Compress(tp ContentEncoding, data []byte) ([]byte, error) {
	switch tp {
	case ContentEncodingGzip:
		return c.compress(&c.gzipWriterPool, data, func(w interface{}, buf *bytes.Buffer) io.WriteCloser {
			gw := w.(*gzip.Writer)
			gw.Reset(buf)
			return gw
		})
	case ContentEncodingDeflate:
		return c.compress(&c.zlibWriterPool, data, func(w interface{}, buf *bytes.Buffer) io.WriteCloser {
			zw := w.(*zlib.Writer)
			zw.Reset(buf)
			return zw
		})
	case ContentEncodingBrotli:
		return c.compress(&c.brotliWriterPool, data, func(w interface{}, buf *bytes.Buffer) io.WriteCloser {
			bw := w.(*brotli.Writer)
			bw.Reset(buf)
			return bw
		})
	case ContentEncodingPlain:
		return data, nil
	default:
		return nil, ErrUnknownContentEncoding
	}
}

func (c *Codec) Uncompress(tp ContentEncoding, data []byte) ([]byte, error) {
	switch tp {
	case ContentEncodingGzip:
		return c.uncompress(data, func(r io.Reader) (io.Reader, error) {
			return gzip.NewReader(r)
		})
	case ContentEncodingDeflate:
		return c.uncompress(data, func(r io.Reader) (io.Reader, error) {
			return zlib.NewReader(r)
		})
	case ContentEncodingBrotli:
		return c.uncompress(data, func(r io.Reader) (io.Reader, error) {
			return brotli.NewReader(r), nil
		})
	case ContentEncodingPlain:
		return data, nil
	default:
		return nil, ErrUnknownContentEncoding
	}
}

func (c *Codec) compress(pool *sync.Pool, data []byte, reset func(w interface{}, buf *bytes.Buffer) io.WriteCloser) ([]byte, error) {
	w := pool.Get()
	defer pool.Put(w)

	buf := c.bufferPool.Get().(*bytes.Buffer)
	defer c.bufferPool.Put(buf)
	buf.Reset()

	writer := reset(w, buf)
	if _, err := writer.Write(data); err != nil {
		return nil, errors.Wrap(err, "compress")
	}
	if err := writer.Close(); err != nil {
		return nil, errors.Wrap(err, "compress")
	}

	// buf goes back to the pool, the frame must not alias it.
	return bytes.Clone(buf.Bytes()), nil
}

func (c *Codec) uncompress(data []byte, open func(r io.Reader) (io.Reader, error)) ([]byte, error) {
	byteReader := c.byteReaderPool.Get().(*bytes.Reader)
	defer c.byteReaderPool.Put(byteReader)
	byteReader.Reset(data)

	reader, err := open(byteReader)
	if err != nil {
		return nil, errors.Wrap(err, "uncompress")
	}
	if closer, ok := reader.(io.Closer); ok {
		defer closer.Close()
	}

	out, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "uncompress")
	}
	return out, nil
}
