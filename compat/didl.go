package compat

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"path"
	"strings"
)

const didlHeader = `<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/" xmlns:sec="http://www.sec.co.kr/dlna">`

// BuildDIDL builds the standard DIDL-Lite fragment for a media item,
// including a res element with a protocolInfo guessed from the URL.
func BuildDIDL(mediaURL, title string) string {
	if title == "" {
		title = "Untitled"
	}
	mime := mimeForURL(mediaURL)
	var buf bytes.Buffer
	buf.WriteString(didlHeader)
	buf.WriteString(`<item id="0" parentID="-1" restricted="1">`)
	buf.WriteString("<dc:title>" + xmlEscape(title) + "</dc:title>")
	buf.WriteString("<upnp:class>" + classForMime(mime) + "</upnp:class>")
	fmt.Fprintf(&buf, `<res protocolInfo="http-get:*:%s:*">%s</res>`, mime, xmlEscape(mediaURL))
	buf.WriteString("</item></DIDL-Lite>")
	return buf.String()
}

// BuildMinimalDIDL keeps only the title and class. Verbose fragments break
// playback on some models, so this variant deliberately omits the res block.
func BuildMinimalDIDL(mediaURL, title string) string {
	if title == "" {
		title = "Untitled"
	}
	_ = mediaURL
	var buf bytes.Buffer
	buf.WriteString(`<DIDL-Lite xmlns="urn:schemas-upnp-org:metadata-1-0/DIDL-Lite/" xmlns:dc="http://purl.org/dc/elements/1.1/" xmlns:upnp="urn:schemas-upnp-org:metadata-1-0/upnp/">`)
	buf.WriteString(`<item id="0" parentID="0" restricted="1">`)
	buf.WriteString("<dc:title>" + xmlEscape(title) + "</dc:title>")
	buf.WriteString("<upnp:class>object.item.videoItem</upnp:class>")
	buf.WriteString("</item></DIDL-Lite>")
	return buf.String()
}

func mimeForURL(mediaURL string) string {
	ext := strings.ToLower(path.Ext(stripQuery(mediaURL)))
	switch ext {
	case ".mp4", ".m4v", ".mov":
		return "video/mp4"
	case ".mkv":
		return "video/x-matroska"
	case ".avi":
		return "video/x-msvideo"
	case ".ts", ".mpg", ".mpeg":
		return "video/mpeg"
	case ".m3u8":
		return "application/vnd.apple.mpegurl"
	case ".mp3":
		return "audio/mpeg"
	case ".flac":
		return "audio/flac"
	case ".wav":
		return "audio/wav"
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	default:
		return "video/mp4"
	}
}

func classForMime(mime string) string {
	switch {
	case strings.HasPrefix(mime, "audio/"):
		return "object.item.audioItem"
	case strings.HasPrefix(mime, "image/"):
		return "object.item.imageItem"
	default:
		return "object.item.videoItem"
	}
}

func xmlEscape(s string) string {
	var buf bytes.Buffer
	if err := xml.EscapeText(&buf, []byte(s)); err != nil {
		return s
	}
	return buf.String()
}
