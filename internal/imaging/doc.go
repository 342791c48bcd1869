// Package imaging decodes compressed images into raster buffers that fit a
// requested size, without ever holding more memory than one decode needs.
//
// # Pipeline
//
// A decode runs in two passes:
//
//  1. The source's header is probed for its natural bounds.
//  2. ResolveDimension computes the target width and height under the
//     requested FitPolicy.
//  3. SelectSampleFactor picks the largest power-of-two divisor that keeps
//     the decode at or above the target in both axes.
//  4. The source is decoded at that factor. JPEG uses a scaled IDCT, so a
//     large photo requested as a thumbnail is never materialized at full
//     resolution.
//  5. If the sampled decode still overshoots, it is resampled down to the
//     exact target with a Lanczos filter and the scratch buffer is released.
//
// A constraint of 0x0 skips the probe and decodes at natural size.
//
// # Sources
//
// Source has three variants: BytesSource (in memory), FileSource (a path,
// optionally prefixed with "file://") and ResourceSource (a file inside an
// fs.FS, typically an embed.FS). Supported containers are JPEG, PNG, GIF
// (first frame), BMP, TIFF and WebP.
//
// # Thread Safety
//
// Every Pipeline serializes its decode and rescale on a Throttle, by default
// the process-wide DefaultThrottle, so at most one decode holds pixel memory
// at a time. Probing runs outside the throttle. Pure functions in this
// package (ResolveDimension, SelectSampleFactor) are safe anywhere.
//
// # Error Handling
//
// Failures are returned as *DecodeError with one of four kinds:
//   - SourceNotFound: missing file or resource, or not a regular file
//   - MalformedData: bytes are not a decodable image
//   - DecodeOutOfMemory: an allocation was over budget or failed
//   - UnsupportedFormat: the pixel format cannot be produced
//
// Use errors.Is with ErrSourceNotFound, ErrMalformedData,
// ErrDecodeOutOfMemory or ErrUnsupportedFormat to test for a kind. Nothing
// here retries.
package imaging
