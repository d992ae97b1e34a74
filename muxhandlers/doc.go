// Package muxhandlers provides middleware and handlers for the mux router.
//
// Every middleware runs in one of the router's two phases. Pre middleware
// sees the request before routing and may short-circuit with a response;
// post middleware sees the final response of a matched or unmatched
// request. Middleware that must decorate the response the handler returns
// is delivered as a Pair and registered with Pair.Register:
//
//	pair, err := muxhandlers.CORSMiddleware(r, muxhandlers.CORSConfig{
//	    AllowedOrigins:   []string{"https://example.com"},
//	    AllowCredentials: true,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	if err := pair.Register(r, ""); err != nil {
//	    log.Fatal(err)
//	}
//
// Single-phase middleware is registered directly:
//
//	mw, err := muxhandlers.BasicAuthMiddleware(muxhandlers.BasicAuthConfig{
//	    Realm:       "My App",
//	    Credentials: map[string]string{"admin": "secret"},
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r.UsePre("/admin", mw)
//
// # Pre middleware
//
// BasicAuthMiddleware, ContentTypeCheckMiddleware, MethodOverrideMiddleware,
// ProxyHeadersMiddleware, RateLimitMiddleware, RequestSizeLimitMiddleware
// and UploadMiddleware.
//
// UploadMiddleware stores the files of multipart requests under a
// directory and maps each field name to the stored file name in req.Form:
//
//	mw, err := muxhandlers.UploadMiddleware(muxhandlers.UploadConfig{
//	    Dir:    "uploads",
//	    Logger: logger,
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r.UsePre("/upload", mw)
//
// # Post middleware
//
// CacheControlMiddleware, CompressionMiddleware, SecurityHeadersMiddleware
// and ServerMiddleware.
//
// # Pairs
//
// AccessLogMiddleware, CORSMiddleware, MetricsMiddleware,
// RequestIDMiddleware and TimeoutMiddleware. Post middleware does not run
// for requests a pre middleware answered unless the router was built with
// mux.WithPostAfterShortCircuit, so such requests are not logged or
// measured by default.
//
// # Handlers
//
// StaticFilesHandler serves an fs.FS from a wildcard route:
//
//	h, err := muxhandlers.StaticFilesHandler(muxhandlers.StaticFilesConfig{
//	    FS:    os.DirFS("public"),
//	    Param: "filepath",
//	})
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	r.Handle(http.MethodGet, "/static/*filepath", h)
package muxhandlers
