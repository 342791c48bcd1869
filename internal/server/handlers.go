package server

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/ironsheep/image-decode/internal/imaging"
	"github.com/ironsheep/image-decode/internal/task"
)

// maxBatchParallel bounds how many batch items wait on the decode throttle
// at once.
const maxBatchParallel = 8

// ToolCallParams represents the parameters for a tools/call MCP request.
type ToolCallParams struct {
	// Name is the tool to invoke (e.g., "image_decode", "cache_stats").
	Name string `json:"name"`

	// Arguments contains the tool-specific parameters as JSON.
	Arguments json.RawMessage `json:"arguments"`
}

// handleToolsCall processes a tools/call request and executes the specified tool.
//
// The response wraps the tool result in MCP's content format:
//
//	{
//	  "content": [{"type": "text", "text": "<JSON result>"}]
//	}
//
// Tool execution errors return a JSON-RPC error response with code -32000.
// For decode failures the error data is the decode error kind, such as
// "SOURCE_NOT_FOUND".
func (s *Server) handleToolsCall(req *MCPRequest) *MCPResponse {
	var params ToolCallParams
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return s.errorResponse(req.ID, -32602, "Invalid params", err.Error())
	}

	result, err := s.executeTool(params.Name, params.Arguments)
	if err != nil {
		data := err.Error()
		if kind := imaging.KindOf(err); kind != 0 {
			data = kind.String()
		}
		return s.errorResponse(req.ID, -32000, "Tool execution failed: "+err.Error(), data)
	}

	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      req.ID,
		Result: map[string]interface{}{
			"content": []map[string]interface{}{
				{
					"type": "text",
					"text": mustMarshalJSON(result),
				},
			},
		},
	}
}

// executeTool dispatches tool execution to the appropriate handler function.
func (s *Server) executeTool(name string, args json.RawMessage) (interface{}, error) {
	switch name {
	case "image_probe":
		return s.handleImageProbe(args)
	case "image_decode":
		return s.handleImageDecode(args)
	case "image_decode_batch":
		return s.handleImageDecodeBatch(args)
	case "cache_stats":
		return s.handleCacheStats()
	case "cache_clear":
		return s.handleCacheClear()
	default:
		return nil, fmt.Errorf("unknown tool: %s", name)
	}
}

// errorResponse creates a JSON-RPC error response with the given details.
func (s *Server) errorResponse(id interface{}, code int, message, data string) *MCPResponse {
	return &MCPResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error: &MCPError{
			Code:    code,
			Message: message,
			Data:    data,
		},
	}
}

// mustMarshalJSON converts a value to pretty-printed JSON string.
// Panics are suppressed; on marshal failure, returns an empty string.
func mustMarshalJSON(v interface{}) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}

type sourceArgs struct {
	Path       string `json:"path"`
	DataBase64 string `json:"data_base64"`
	ID         string `json:"id"`
}

// source builds an imaging.Source from the arguments. Inline data without
// an id is identified by a digest of its bytes.
func (a sourceArgs) source() (imaging.Source, error) {
	switch {
	case a.DataBase64 != "":
		data, err := base64.StdEncoding.DecodeString(a.DataBase64)
		if err != nil {
			return nil, fmt.Errorf("invalid data_base64: %w", err)
		}
		id := a.ID
		if id == "" {
			sum := sha256.Sum256(data)
			id = "inline:" + hex.EncodeToString(sum[:8])
		}
		return imaging.NewBytesSource(id, data), nil
	case a.Path != "":
		return imaging.NewFileSource(a.Path), nil
	default:
		return nil, errors.New("either path or data_base64 is required")
	}
}

// === Probe ===

func (s *Server) handleImageProbe(args json.RawMessage) (interface{}, error) {
	var a sourceArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	src, err := a.source()
	if err != nil {
		return nil, err
	}
	return imaging.Inspect(src)
}

// === Decode ===

type imageDecodeArgs struct {
	sourceArgs
	MaxWidth     int    `json:"max_width"`
	MaxHeight    int    `json:"max_height"`
	Fit          string `json:"fit"`
	Format       string `json:"format"`
	Crop         bool   `json:"crop"`
	IncludeImage *bool  `json:"include_image"`
}

// DecodeResult is the outcome of one decode tool call.
type DecodeResult struct {
	Source           string `json:"source"`
	Width            int    `json:"width"`
	Height           int    `json:"height"`
	NaturalWidth     int    `json:"natural_width,omitempty"`
	NaturalHeight    int    `json:"natural_height,omitempty"`
	SampleFactor     int    `json:"sample_factor,omitempty"`
	Rescaled         bool   `json:"rescaled"`
	Cropped          bool   `json:"cropped"`
	FromCache        bool   `json:"from_cache"`
	Format           string `json:"format"`
	ByteCount        int    `json:"byte_count"`
	PlaceholderColor string `json:"placeholder_color"`
	ImageBase64      string `json:"image_base64,omitempty"`
	MimeType         string `json:"mime_type,omitempty"`
}

// BatchItemResult is one entry of an image_decode_batch result.
type BatchItemResult struct {
	Index  int           `json:"index"`
	Result *DecodeResult `json:"result,omitempty"`
	Error  string        `json:"error,omitempty"`
	Kind   string        `json:"kind,omitempty"`
}

func (s *Server) handleImageDecode(args json.RawMessage) (interface{}, error) {
	var a imageDecodeArgs
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	return s.decode(a)
}

func (s *Server) handleImageDecodeBatch(args json.RawMessage) (interface{}, error) {
	var a struct {
		Items []imageDecodeArgs `json:"items"`
	}
	if err := json.Unmarshal(args, &a); err != nil {
		return nil, err
	}
	if len(a.Items) == 0 {
		return nil, errors.New("items must not be empty")
	}

	results := make([]BatchItemResult, len(a.Items))
	var g errgroup.Group
	g.SetLimit(maxBatchParallel)
	for i, item := range a.Items {
		g.Go(func() error {
			results[i].Index = i
			res, err := s.decode(item)
			if err != nil {
				results[i].Error = err.Error()
				if kind := imaging.KindOf(err); kind != 0 {
					results[i].Kind = kind.String()
				}
				return nil
			}
			results[i].Result = res
			return nil
		})
	}
	_ = g.Wait()

	return map[string]interface{}{"results": results}, nil
}

func (s *Server) decode(a imageDecodeArgs) (*DecodeResult, error) {
	src, err := a.source()
	if err != nil {
		return nil, err
	}
	policy, err := imaging.ParseFitPolicy(a.Fit)
	if err != nil {
		return nil, err
	}
	format := s.format
	if a.Format != "" {
		if format, err = imaging.ParsePixelFormat(a.Format); err != nil {
			return nil, err
		}
	}

	req := task.Request{
		ID:         src.ID(),
		Source:     src,
		Constraint: imaging.SizeConstraint{MaxWidth: a.MaxWidth, MaxHeight: a.MaxHeight},
		Policy:     policy,
		Format:     format,
	}
	resp, err := s.decoder.Submit(req)
	if err != nil {
		return nil, err
	}

	buf := resp.Buffer
	cropped := false
	if a.Crop && policy == imaging.FitCenterCrop {
		out, err := imaging.CropCenter(buf, req.Constraint, nil)
		if err != nil {
			return nil, err
		}
		cropped = out != buf
		buf = out
	}

	result := &DecodeResult{
		Source:           resp.ID,
		Width:            buf.Width,
		Height:           buf.Height,
		NaturalWidth:     resp.Natural.Width,
		NaturalHeight:    resp.Natural.Height,
		SampleFactor:     resp.SampleFactor,
		Rescaled:         resp.Rescaled,
		Cropped:          cropped,
		FromCache:        resp.FromCache,
		Format:           buf.Format.String(),
		ByteCount:        buf.ByteCount(),
		PlaceholderColor: buf.AverageColor(),
	}

	if a.IncludeImage == nil || *a.IncludeImage {
		enc, err := imaging.EncodePNG(buf)
		if err != nil {
			return nil, err
		}
		result.ImageBase64 = enc.ImageBase64
		result.MimeType = enc.MimeType
	}
	return result, nil
}

// === Cache ===

func (s *Server) handleCacheStats() (interface{}, error) {
	c := s.decoder.Cache()
	if c == nil {
		return nil, errors.New("cache is disabled")
	}
	return c.Stats(), nil
}

func (s *Server) handleCacheClear() (interface{}, error) {
	c := s.decoder.Cache()
	if c == nil {
		return nil, errors.New("cache is disabled")
	}
	removed := c.Len()
	c.Clear()
	return map[string]interface{}{"removed": removed}, nil
}
