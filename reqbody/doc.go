// Package reqbody decodes raw HTTP request bodies into a tagged Body value.
//
// The decoder is selected by the Content-Type header:
//   - multipart/form-data (RFC 7578) is split into text fields and file
//     parts; malformed parts are skipped and counted instead of failing the
//     whole body
//   - application/json and +json media types are decoded into a generic value
//   - application/x-www-form-urlencoded is parsed into url.Values
//   - text/*, application/xml and +xml media types are kept as text with
//     their declared charset
//   - everything else is binary
//
// A multipart body without a boundary parameter, or whose boundary never
// appears in the body, is treated as one file part named "file" holding the
// whole body. Clients that stream a raw file with a multipart Content-Type
// rely on this.
package reqbody
