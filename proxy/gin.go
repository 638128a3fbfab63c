package proxy

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/ceyewan/meshd/xerrors"
)

// GinHandler 把 ANY /proxy/:service/*path 转发给 Proxy.Do
func GinHandler(p *Proxy) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("service")
		body, err := io.ReadAll(io.LimitReader(c.Request.Body, p.cfg.MaxRequestBytes+1))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "read request body"})
			return
		}
		// 截断后转发会让上游收到残缺的请求体
		if int64(len(body)) > p.cfg.MaxRequestBytes {
			err := xerrors.Wrapf(ErrRequestTooLarge, "limit %d bytes", p.cfg.MaxRequestBytes)
			c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, gin.H{"error": err.Error(), "service": name})
			return
		}

		resp, err := p.Do(c.Request.Context(), name, c.Param("path"), &Request{
			Method: c.Request.Method,
			Header: c.Request.Header.Clone(),
			Query:  c.Request.URL.Query(),
			Body:   body,
		})
		if err != nil {
			body := gin.H{"error": err.Error(), "service": name}
			if code := xerrors.GetCode(err); code != "" {
				body["status"] = code
			}
			c.AbortWithStatusJSON(statusFor(err), body)
			return
		}

		for k, vs := range resp.Header {
			if skipHeader(k, true) || k == "Content-Length" {
				continue
			}
			for _, v := range vs {
				c.Writer.Header().Add(k, v)
			}
		}
		c.Data(resp.StatusCode, resp.Header.Get("Content-Type"), resp.Body)
	}
}

func statusFor(err error) int {
	switch {
	case xerrors.Is(err, ErrServiceNotFound):
		return http.StatusNotFound
	case xerrors.Is(err, ErrCircuitOpen):
		return http.StatusServiceUnavailable
	case xerrors.Is(err, ErrInvalidConfig), xerrors.Is(err, xerrors.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusBadGateway
	}
}
