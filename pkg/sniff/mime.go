package sniff

import "bytes"

// OctetStream is reported for bytes that match no known signature.
const OctetStream = "application/octet-stream"

var (
	sigPNG   = []byte{0x89, 'P', 'N', 'G', 0x0D, 0x0A, 0x1A, 0x0A}
	sigJPEG  = []byte{0xFF, 0xD8, 0xFF}
	sigGIF   = []byte("GIF8")
	sigRIFF  = []byte("RIFF")
	sigWEBP  = []byte("WEBP")
	sigFtyp  = []byte("ftyp")
	sigWebM  = []byte{0x1A, 0x45, 0xDF, 0xA3}
	sigWOFF2 = []byte("wOF2")
	sigWOFF  = []byte("wOFF")
	sigTTF   = []byte{0x00, 0x01, 0x00, 0x00}
	sigTrue  = []byte("true")
	sigOTF   = []byte("OTTO")
)

// DetectMIMEType identifies data by fixed-offset magic bytes. Unknown data
// is OctetStream; detection never fails.
func DetectMIMEType(data []byte) string {
	switch {
	case bytes.HasPrefix(data, sigPNG):
		return "image/png"
	case bytes.HasPrefix(data, sigJPEG):
		return "image/jpeg"
	case bytes.HasPrefix(data, sigGIF):
		return "image/gif"
	case len(data) >= 12 && bytes.HasPrefix(data, sigRIFF) && bytes.Equal(data[8:12], sigWEBP):
		return "image/webp"
	case len(data) >= 12 && bytes.Equal(data[4:8], sigFtyp):
		if isAVIF(data) {
			return "image/avif"
		}
		return "video/mp4"
	case bytes.HasPrefix(data, sigWebM):
		return "video/webm"
	case bytes.HasPrefix(data, sigWOFF2):
		return "font/woff2"
	case bytes.HasPrefix(data, sigWOFF):
		return "font/woff"
	case bytes.HasPrefix(data, sigTTF), bytes.HasPrefix(data, sigTrue):
		return "font/ttf"
	case bytes.HasPrefix(data, sigOTF):
		return "font/otf"
	}
	return OctetStream
}

// isAVIF inspects the ftyp box: the major brand at offset 8 and the
// compatible brands that follow, bounded by the box size.
func isAVIF(data []byte) bool {
	size := int(data[0])<<24 | int(data[1])<<16 | int(data[2])<<8 | int(data[3])
	if size < 16 || size > len(data) {
		size = len(data)
	}
	for off := 8; off+4 <= size; off += 4 {
		if off == 12 {
			continue // minor version
		}
		brand := data[off : off+4]
		if bytes.Equal(brand, []byte("avif")) || bytes.Equal(brand, []byte("avis")) {
			return true
		}
	}
	return false
}

// IsImage reports whether mimeType is a raster or vector image type.
func IsImage(mimeType string) bool {
	return len(mimeType) > 6 && mimeType[:6] == "image/"
}

// IsCompressed reports whether data of mimeType is already compressed, so
// wrapping it in another compression layer only costs CPU.
func IsCompressed(mimeType string) bool {
	switch mimeType {
	case "image/png", "image/jpeg", "image/gif", "image/webp", "image/avif",
		"video/mp4", "video/webm", "font/woff", "font/woff2":
		return true
	}
	return false
}

// Extension returns a conventional file extension, with the dot, for
// mimeType. Unknown types get ".bin".
func Extension(mimeType string) string {
	switch mimeType {
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/gif":
		return ".gif"
	case "image/webp":
		return ".webp"
	case "image/avif":
		return ".avif"
	case "image/svg+xml":
		return ".svg"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	case "audio/mpeg":
		return ".mp3"
	case "font/woff2":
		return ".woff2"
	case "font/woff":
		return ".woff"
	case "font/ttf":
		return ".ttf"
	case "font/otf":
		return ".otf"
	}
	return ".bin"
}
