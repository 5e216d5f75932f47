package sniff

import "encoding/binary"

// Dimensions is the pixel size of a raster image.
type Dimensions struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

// ProbeImageDimensions reads width and height from PNG, JPEG and GIF
// headers. Other formats, and any truncated or inconsistent header, report
// ok == false.
func ProbeImageDimensions(data []byte, mimeType string) (dims Dimensions, ok bool) {
	switch mimeType {
	case "image/png":
		return probePNG(data)
	case "image/jpeg":
		return probeJPEG(data)
	case "image/gif":
		return probeGIF(data)
	}
	return Dimensions{}, false
}

// probePNG reads the IHDR chunk: 8-byte signature, 4-byte length, "IHDR",
// then big-endian width and height.
func probePNG(data []byte) (Dimensions, bool) {
	if len(data) < 24 || string(data[12:16]) != "IHDR" {
		return Dimensions{}, false
	}
	w := binary.BigEndian.Uint32(data[16:20])
	h := binary.BigEndian.Uint32(data[20:24])
	return Dimensions{Width: int(w), Height: int(h)}, true
}

// probeJPEG walks markers from offset 2 until a Start-Of-Frame. SOF
// payloads start with the sample precision byte, then height and width.
func probeJPEG(data []byte) (Dimensions, bool) {
	off := 2
	for off+4 <= len(data) {
		if data[off] != 0xFF {
			return Dimensions{}, false
		}
		marker := data[off+1]
		if marker == 0xFF {
			off++ // fill byte
			continue
		}
		if marker == 0x01 || (marker >= 0xD0 && marker <= 0xD7) {
			off += 2 // standalone markers carry no length
			continue
		}
		length := int(binary.BigEndian.Uint16(data[off+2 : off+4]))
		if length < 2 {
			return Dimensions{}, false
		}
		if isSOF(marker) {
			if off+9 > len(data) {
				return Dimensions{}, false
			}
			h := binary.BigEndian.Uint16(data[off+5 : off+7])
			w := binary.BigEndian.Uint16(data[off+7 : off+9])
			return Dimensions{Width: int(w), Height: int(h)}, true
		}
		off += 2 + length
	}
	return Dimensions{}, false
}

func isSOF(marker byte) bool {
	return marker >= 0xC0 && marker <= 0xCF && marker != 0xC4 && marker != 0xC8 && marker != 0xCC
}

// probeGIF reads the logical screen descriptor after the 6-byte signature.
func probeGIF(data []byte) (Dimensions, bool) {
	if len(data) < 10 {
		return Dimensions{}, false
	}
	w := binary.LittleEndian.Uint16(data[6:8])
	h := binary.LittleEndian.Uint16(data[8:10])
	return Dimensions{Width: int(w), Height: int(h)}, true
}
