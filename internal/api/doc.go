// Package api serves the relay's HTTP interface.
//
// Routes:
//
//	POST   /api/sessions                                         create a session
//	GET    /api/sessions/{id}                                    session status and recipient key
//	POST   /api/sessions/{id}/providers                          ingest an envelope
//	PUT    /api/sessions/{id}/uploads/{uploadId}/chunks/{index}  stage a chunk blob
//	POST   /api/sessions/{id}/finalize                           finalize
//	GET    /api/sessions/{id}/poll?timeout=N                     long-poll (seconds)
//	GET    /api/sessions/{id}/providers/{p}/chunks/{c}           fetch a chunk blob
//	DELETE /api/sessions/{id}                                    delete a session
//
// Failures are answered with {"error": code, "message": text} and a status
// derived from the error kind.
package api
