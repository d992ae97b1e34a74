// Package upload writes uploaded file parts to disk.
//
// Each part gets a generated name: a random UUID followed by the extension
// sniffed from its leading bytes, so concurrent requests never collide and
// client supplied names never reach the file system.
//
//	m := &upload.Materializer{Dir: "uploads"}
//	manifest := m.Materialize(ctx, body.Files)
//	for _, rec := range manifest.Records {
//		fmt.Println(rec.FieldName, "->", rec.Path)
//	}
//
// Materialize never fails as a whole. Parts that cannot be written are
// logged and listed in Manifest.Failures, which tells "nothing uploaded"
// apart from "nothing written". Files already written are not removed
// when a later part fails.
package upload
