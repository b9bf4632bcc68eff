package tools

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"image/gif"
)

var errMalformed = errors.New("malformed picture")

// stripJPEG drops APP1-APP13, APP15 and COM segments in front of the first
// scan. APP0 (JFIF) and APP14 (Adobe color transform) stay, the decoder needs
// them. The entropy coded data is copied untouched.
func stripJPEG(data []byte) ([]byte, error) {
	if len(data) < 4 || data[0] != 0xFF || data[1] != 0xD8 {
		return nil, fmt.Errorf("%w: no jpeg start marker", errMalformed)
	}
	out := make([]byte, 0, len(data))
	out = append(out, 0xFF, 0xD8)
	i := 2
	for {
		if i+2 > len(data) || data[i] != 0xFF {
			return nil, fmt.Errorf("%w: jpeg marker expected at %d", errMalformed, i)
		}
		marker := data[i+1]
		switch {
		case marker == 0xFF:
			// fill byte
			i++
			continue
		case marker == 0xDA, marker == 0xD9:
			return append(out, data[i:]...), nil
		}
		if i+4 > len(data) {
			return nil, fmt.Errorf("%w: truncated jpeg segment", errMalformed)
		}
		end := i + 2 + int(binary.BigEndian.Uint16(data[i+2:]))
		if end < i+4 || end > len(data) {
			return nil, fmt.Errorf("%w: bad jpeg segment length", errMalformed)
		}
		metadata := (marker >= 0xE1 && marker <= 0xED) || marker == 0xEF || marker == 0xFE
		if !metadata {
			out = append(out, data[i:end]...)
		}
		i = end
	}
}

var pngSignature = []byte("\x89PNG\r\n\x1a\n")

var pngMetadataChunks = map[string]bool{
	"tEXt": true,
	"zTXt": true,
	"iTXt": true,
	"eXIf": true,
	"tIME": true,
}

// stripPNG drops the textual, EXIF and timestamp chunks.
func stripPNG(data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, pngSignature) {
		return nil, fmt.Errorf("%w: no png signature", errMalformed)
	}
	out := make([]byte, 0, len(data))
	out = append(out, pngSignature...)
	i := len(pngSignature)
	for i < len(data) {
		if i+8 > len(data) {
			return nil, fmt.Errorf("%w: truncated png chunk", errMalformed)
		}
		end := i + 12 + int(binary.BigEndian.Uint32(data[i:]))
		if end < i+12 || end > len(data) {
			return nil, fmt.Errorf("%w: bad png chunk length", errMalformed)
		}
		typ := string(data[i+4 : i+8])
		if !pngMetadataChunks[typ] {
			out = append(out, data[i:end]...)
		}
		i = end
		if typ == "IEND" {
			break
		}
	}
	return out, nil
}

const (
	vp8xFlagXMP  = 0x04
	vp8xFlagEXIF = 0x08
)

// stripWebP drops the EXIF and XMP chunks and clears their VP8X flags.
func stripWebP(data []byte) ([]byte, error) {
	if len(data) < 12 || string(data[0:4]) != "RIFF" || string(data[8:12]) != "WEBP" {
		return nil, fmt.Errorf("%w: no webp header", errMalformed)
	}
	out := make([]byte, 12, len(data))
	copy(out, data[:12])
	i := 12
	for i < len(data) {
		if i+8 > len(data) {
			return nil, fmt.Errorf("%w: truncated webp chunk", errMalformed)
		}
		size := int(binary.LittleEndian.Uint32(data[i+4:]))
		end := i + 8 + size + size%2
		if end < i+8 || end > len(data) {
			return nil, fmt.Errorf("%w: bad webp chunk length", errMalformed)
		}
		switch fourcc := string(data[i : i+4]); fourcc {
		case "EXIF", "XMP ":
		case "VP8X":
			start := len(out)
			out = append(out, data[i:end]...)
			if size > 0 {
				out[start+8] &^= vp8xFlagEXIF | vp8xFlagXMP
			}
		default:
			out = append(out, data[i:end]...)
		}
		i = end
	}
	binary.LittleEndian.PutUint32(out[4:], uint32(len(out)-8))
	return out, nil
}

// stripGIF re-encodes every frame. Comment and application extensions other
// than the loop count are not written back; palette data is kept as is.
func stripGIF(data []byte) ([]byte, error) {
	g, err := gif.DecodeAll(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := gif.EncodeAll(&buf, g); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
