package server

// Tool represents an MCP tool definition
type Tool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"inputSchema"`
}

// sourceProperties are the ways a tool call can name its image.
func sourceProperties() map[string]interface{} {
	return map[string]interface{}{
		"path": map[string]interface{}{
			"type":        "string",
			"description": "Absolute path to the image file (a file:// prefix is accepted)",
		},
		"data_base64": map[string]interface{}{
			"type":        "string",
			"description": "Base64-encoded compressed image bytes, used instead of path",
		},
		"id": map[string]interface{}{
			"type":        "string",
			"description": "Optional source identifier for inline data, used as the cache key",
		},
	}
}

// decodeProperties are the decode parameters shared by single and batch decodes.
func decodeProperties() map[string]interface{} {
	props := sourceProperties()
	props["max_width"] = map[string]interface{}{
		"type":        "integer",
		"description": "Maximum width in pixels, 0 for unconstrained. Default 0",
		"default":     0,
	}
	props["max_height"] = map[string]interface{}{
		"type":        "integer",
		"description": "Maximum height in pixels, 0 for unconstrained. Default 0",
		"default":     0,
	}
	props["fit"] = map[string]interface{}{
		"type":        "string",
		"enum":        []string{"none", "fit_xy", "center_inside", "center_crop"},
		"description": "How the aspect ratio maps into the bounds. Default center_inside",
		"default":     "center_inside",
	}
	props["format"] = map[string]interface{}{
		"type":        "string",
		"enum":        []string{"RGB_565", "ARGB_8888", "ALPHA_8"},
		"description": "Pixel format of the decoded raster. Default from server configuration",
	}
	props["crop"] = map[string]interface{}{
		"type":        "boolean",
		"description": "With center_crop, trim the overflow back to the bounds. Default false",
		"default":     false,
	}
	props["include_image"] = map[string]interface{}{
		"type":        "boolean",
		"description": "Return the decoded raster as base64 PNG. Default true",
		"default":     true,
	}
	return props
}

// GetToolDefinitions returns all available tools
func GetToolDefinitions() []Tool {
	return []Tool{
		{
			Name:        "image_probe",
			Description: "Read an image header and return its natural dimensions, container format and alpha information without decoding pixels.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": sourceProperties(),
			},
		},
		{
			Name:        "image_decode",
			Description: "Decode an image to fit the given bounds. Large images are decoded at a reduced power-of-two scale before an exact resample, and decodes are serialized to bound memory use.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": decodeProperties(),
			},
		},
		{
			Name:        "image_decode_batch",
			Description: "Decode several images concurrently. Each item takes the same arguments as image_decode; failures are reported per item.",
			InputSchema: map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"items": map[string]interface{}{
						"type": "array",
						"items": map[string]interface{}{
							"type":       "object",
							"properties": decodeProperties(),
						},
					},
				},
				"required": []string{"items"},
			},
		},
		{
			Name:        "cache_stats",
			Description: "Report decoded image cache usage: entries, bytes used, capacity, hits, misses and evictions.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
		{
			Name:        "cache_clear",
			Description: "Drop every decoded image from the cache.",
			InputSchema: map[string]interface{}{
				"type":       "object",
				"properties": map[string]interface{}{},
			},
		},
	}
}
