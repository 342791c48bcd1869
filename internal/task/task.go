// Package task is the unit of work a request layer runs to turn a fetched
// image into a sized raster buffer.
//
// A Decoder checks the in-memory cache, runs the decode pipeline on a miss
// (serialized process-wide by the pipeline's throttle), stores the result and
// returns it together with the caller's cache metadata. It never retries;
// retry policy belongs to whoever calls Submit.
package task

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/ironsheep/image-decode/internal/cache"
	"github.com/ironsheep/image-decode/internal/imaging"
)

// ProgressFunc receives transfer progress from the fetch layer.
type ProgressFunc func(percent int, transferredBytes, totalBytes, elapsedMillis int64, retryCount int)

// CacheMeta is freshness metadata supplied by the HTTP layer. It is carried
// through to the Response untouched.
type CacheMeta struct {
	ETag         string            `json:"etag,omitempty"`
	ServerDate   time.Time         `json:"server_date"`
	LastModified time.Time         `json:"last_modified"`
	TTL          time.Time         `json:"ttl"`
	SoftTTL      time.Time         `json:"soft_ttl"`
	Headers      map[string]string `json:"headers,omitempty"`
}

// Request describes one decode.
type Request struct {
	// ID identifies the origin (URL, path or resource key). Defaults to
	// Source.ID().
	ID string

	Source     imaging.Source
	Constraint imaging.SizeConstraint
	Policy     imaging.FitPolicy
	Format     imaging.PixelFormat

	// Progress, if set, receives events relayed through Forward.
	Progress ProgressFunc

	// Meta is returned on the Response as-is.
	Meta *CacheMeta
}

func (r *Request) sourceID() string {
	if r.ID != "" {
		return r.ID
	}
	if r.Source != nil {
		return r.Source.ID()
	}
	return ""
}

// CacheKey identifies the decoded result: the source identifier plus the
// size, policy and format it was decoded for.
func (r *Request) CacheKey() string {
	return fmt.Sprintf("#W%d#H%d#S%d#F%d%s",
		r.Constraint.MaxWidth, r.Constraint.MaxHeight, int(r.Policy), int(r.Format), r.sourceID())
}

// Forward relays a progress event to the request's sink. The percentage is
// clamped to 0..100. A nil sink is ignored.
func (r *Request) Forward(percent int, transferredBytes, totalBytes, elapsedMillis int64, retryCount int) {
	if r.Progress == nil {
		return
	}
	r.Progress(min(max(percent, 0), 100), transferredBytes, totalBytes, elapsedMillis, retryCount)
}

// Response is a successful decode.
type Response struct {
	// RequestID correlates log lines for this submit.
	RequestID string

	// ID is the source identifier.
	ID string

	Buffer *imaging.RasterBuffer
	Meta   *CacheMeta

	// FromCache is true when Buffer came from the cache without decoding.
	FromCache bool

	// Natural, SampleFactor and Rescaled describe the decode. They are
	// zero for cache hits.
	Natural      imaging.Bounds
	SampleFactor int
	Rescaled     bool
}

// ErrNoSource is returned for a Request without a Source.
var ErrNoSource = errors.New("request has no image source")

// Decoder runs Requests. It is safe for concurrent use.
type Decoder struct {
	pipeline *imaging.Pipeline
	cache    *cache.LRU
	logger   *zap.Logger
}

// New returns a Decoder. A nil cache disables caching; a nil logger
// discards logs.
func New(p *imaging.Pipeline, c *cache.LRU, logger *zap.Logger) *Decoder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Decoder{pipeline: p, cache: c, logger: logger}
}

// Cache returns the decoder's cache, which may be nil.
func (d *Decoder) Cache() *cache.LRU { return d.cache }

// Submit decodes req, serving it from the cache when possible. It blocks
// the calling goroutine until the decode finishes, including while another
// decode holds the throttle.
//
// Errors from the pipeline are returned unchanged, typically a
// *imaging.DecodeError.
func (d *Decoder) Submit(req Request) (*Response, error) {
	if req.Source == nil {
		return nil, ErrNoSource
	}

	reqID := uuid.NewString()
	id := req.sourceID()
	key := req.CacheKey()
	log := d.logger.With(zap.String("request_id", reqID), zap.String("source", id))

	if d.cache != nil {
		if buf, ok := d.cache.Get(key); ok {
			log.Debug("cache hit", zap.String("key", key))
			return &Response{
				RequestID: reqID,
				ID:        id,
				Buffer:    buf,
				Meta:      req.Meta,
				FromCache: true,
			}, nil
		}
	}

	start := time.Now()
	decoded, err := d.pipeline.DecodeDetailed(req.Source, req.Constraint, req.Policy, req.Format)
	if err != nil {
		log.Warn("decode failed",
			zap.Stringer("kind", imaging.KindOf(err)),
			zap.Duration("elapsed", time.Since(start)),
			zap.Error(err),
		)
		return nil, err
	}

	if d.cache != nil {
		d.cache.Put(key, decoded.Buffer)
	}

	log.Info("decoded",
		zap.Int("width", decoded.Buffer.Width),
		zap.Int("height", decoded.Buffer.Height),
		zap.Int("sample_factor", decoded.SampleFactor),
		zap.Duration("elapsed", time.Since(start)),
	)

	return &Response{
		RequestID:    reqID,
		ID:           id,
		Buffer:       decoded.Buffer,
		Meta:         req.Meta,
		Natural:      decoded.Natural,
		SampleFactor: decoded.SampleFactor,
		Rescaled:     decoded.Rescaled,
	}, nil
}
