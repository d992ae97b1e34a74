// Package mux implements a request router and dispatcher with a two-phase
// middleware chain.
//
// The package implements routing semantics based on:
//   - RFC 9110 (HTTP Semantics)
//   - RFC 3986 (URIs)
//
// # Router
//
// Create a router, register handlers and middleware, then serve:
//
//	r := mux.NewRouter()
//	r.Get("/articles/{category}/{id:int}", ArticleHandler)
//	r.Post("/uploads", UploadHandler)
//	if err := r.Freeze(); err != nil {
//		log.Fatal(err)
//	}
//	http.ListenAndServe(":8080", r)
//
// Handlers receive the per-request context and the response being built:
//
//	func ArticleHandler(req *mux.Request, resp *mux.Response) *mux.Response {
//		return mux.JSON(http.StatusOK, map[string]string{
//			"category": req.Param("category"),
//			"id":       req.Param("id"),
//		})
//	}
//
// Returning nil keeps resp, which the handler may have modified in place.
//
// # Path Patterns
//
// A template is split on "/" into segments:
//
//	users         static text
//	{id}          one segment bound to "id"
//	{id:int}      constrained by a macro or a regexp: {id:[0-9]+}
//	:id           same as {id}
//	*rest         every remaining segment, joined by "/"
//
// A wildcard may appear once, as the last segment. Leading and trailing
// slashes are ignored, so "/users/" and "/users" are the same template and
// match both request paths. Parameter values are URL-decoded.
//
// Available macros: uuid, int, float, slug, alpha, alphanum, date, hex,
// domain.
//
// # Route Order
//
// Routes are tried in registration order and the first match wins; there
// is no specificity scoring. Register "/users/static" before "/users/{id}".
// Routes registered with MethodAny interleave with method routes by
// registration order.
//
// # Middleware
//
// Middleware is registered for a phase and a mount prefix:
//
//	r.UsePre("/admin", authMiddleware)
//	r.UsePost("", accessLog)
//
// Selection is a plain string prefix test on the decoded request path:
// "/api" selects "/api/users" and also "/apiville". Within a phase
// middleware runs strictly in registration order.
//
// A pre middleware that returns a response short-circuits: the remaining
// pre middleware and the handler are skipped. Post middleware transforms
// or replaces the response and never stops the phase. By default post
// middleware does not run after a short-circuit; WithPostAfterShortCircuit
// changes that. Post middleware always runs for not-found responses.
//
// # Request Data
//
// Middleware passes values downstream through the request side channel:
//
//	req.Set("user", user)
//	u, ok := req.Get("user")
//
// # Bodies
//
// The body is read once and decoded by package reqbody according to its
// Content-Type. Malformed JSON or urlencoded bodies are reported through
// req.DecodeErr and never turned into a status by the router. Multipart
// text fields are copied into req.Form.
//
// # Errors
//
// Registration methods return errors and also record them. Freeze returns
// them joined, so a single check at startup catches every invalid pattern.
// A router with registration errors answers every request with 500.
package mux
