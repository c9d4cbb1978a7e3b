/*
Package tracing records spans for HTTP requests and tool executions.

Trace context travels in the X-Trace-ID and X-Span-ID headers. A request
without them starts a new trace. Finished spans are buffered (1000) and
logged by a collector goroutine; spans are dropped when the buffer is full.

# Usage

	tracer := tracing.New("miniapp-mcp", logger)
	defer tracer.Close()

	router.Use(tracing.HTTPMiddleware(tracer))

	span, ctx := tracer.StartSpan(ctx, "tool.miniapp.click")
	defer func() {
		span.Finish()
		tracer.Submit(span)
	}()
*/
package tracing
