package utils

import "github.com/valyala/fasthttp"

func CreateErrorResponse(ctx *fasthttp.RequestCtx, statusCode int, message string) {
	ctx.SetStatusCode(statusCode)
	ctx.SetContentType("application/json")

	ctx.Response.Header.Set("Cache-Control", "no-cache, no-store, must-revalidate")
	ctx.Response.Header.Set("Pragma", "no-cache")
	ctx.Response.Header.Set("Expires", "0")

	body, err := Marshal(map[string]string{
		"error":   fasthttp.StatusMessage(statusCode),
		"message": message,
	})
	if err != nil {
		ctx.SetBodyString(`{"error":"Internal Server Error"}`)
		return
	}
	ctx.SetBody(body)
}
