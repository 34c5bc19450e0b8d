package services

import (
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli"

	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/cloudstrm/strm-gateway/docs"
)

// @title           STRM Gateway API
// @version         0.1
// @description     Resolves cloud-hosted media into playable links and proxies byte streams for media players.

const (
	webHostFlag = "host"
	webPortFlag = "port"
)

type Web struct {
	host string
	port int
	ln   net.Listener
	st   *Streamer
}

func NewWeb(c *cli.Context, st *Streamer) *Web {
	return &Web{
		host: c.String(webHostFlag),
		port: c.Int(webPortFlag),
		st:   st,
	}
}

func RegisterWebFlags(f []cli.Flag) []cli.Flag {
	return append(f,
		cli.StringFlag{
			Name:   webHostFlag,
			Usage:  "listening host",
			Value:  "",
			EnvVar: "WEB_HOST",
		},
		cli.IntFlag{
			Name:   webPortFlag,
			Usage:  "http listening port",
			Value:  8080,
			EnvVar: "WEB_PORT",
		},
	)
}

func kindFromParams(g *gin.Context) LinkKind {
	if g.Query("kind") == string(LinkKindTranscode) {
		return LinkKindTranscode
	}
	return LinkKindDownload
}

// streamFileID extracts the provider file id from a placeholder path. The
// planner builds those as /remote/path/segments/{file_id}, so the id is the
// last segment; the rest is only there to keep player logs readable.
func streamFileID(path string) string {
	path = strings.Trim(path, "/")
	if i := strings.LastIndex(path, "/"); i != -1 {
		path = path[i+1:]
	}
	return path
}

// @Summary Streams file content
// @Description Proxies the upstream byte stream for a file, honoring the Range header. The path is the placeholder path whose last segment is the file id.
// @Param path  path  string true  "placeholder path ending with the file id" example("Movies/movie1.mp4/5f3a9c2e71")
// @Param kind  query string false "kind" Enums(download, transcode)
// @Param Range header string false "byte range"
// @Schemes
// @Tags   stream
// @Accept */*
// @Produce application/octet-stream
// @Success 200
// @Success 206
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /stream/{path} [get]
func (s *Web) getStream(g *gin.Context) {
	fileID := streamFileID(g.Param("path"))
	if fileID == "" {
		g.Error(errors.Errorf("failed to parse file id"))
		return
	}
	err := s.st.Stream(g.Request.Context(), fileID, kindFromParams(g), g.GetHeader("Range"), g.Writer)
	if err != nil {
		g.Error(err)
		return
	}
}

// @Summary Redirects to a direct link
// @Description Resolves the file to a provider-issued time-limited URL and responds with a 302.
// @Param file_id path  string true  "file_id" example("5f3a9c2e71")
// @Param kind    query string false "kind" Enums(download, transcode)
// @Schemes
// @Tags   stream
// @Accept */*
// @Success 302
// @Failure 404 {object} ErrorResponse
// @Failure 502 {object} ErrorResponse
// @Router /redirect/{file_id} [get]
func (s *Web) getRedirect(g *gin.Context) {
	fileID := g.Param("file_id")
	if fileID == "" {
		g.Error(errors.Errorf("failed to parse file id"))
		return
	}
	loc, err := s.st.Redirect(g.Request.Context(), fileID, kindFromParams(g))
	if err != nil {
		g.Error(err)
		return
	}
	g.Redirect(http.StatusFound, loc)
}

func (s *Web) errorHandler(c *gin.Context) {
	c.Next()
	if len(c.Errors) == 0 {
		return
	}
	err := c.Errors[0]
	log.Error(err)

	if c.Writer.Written() {
		return
	}

	status := http.StatusInternalServerError

	if strings.Contains(err.Error(), "failed to parse") {
		status = http.StatusBadRequest
	} else if strings.Contains(err.Error(), "not found") {
		status = http.StatusNotFound
	} else if strings.Contains(err.Error(), "auth rejected") ||
		strings.Contains(err.Error(), "upstream unavailable") ||
		strings.Contains(err.Error(), "expired") {
		status = http.StatusBadGateway
	}
	c.PureJSON(status, &ErrorResponse{Error: err.Error()})
}

func (s *Web) Serve() error {
	addr := fmt.Sprintf("%s:%d", s.host, s.port)
	ln, err := net.Listen("tcp", addr)
	s.ln = ln
	if err != nil {
		return err
	}
	r := gin.Default()
	r.UseRawPath = true
	r.Use(s.errorHandler)
	r.GET("/stream/*path", s.getStream)
	r.GET("/redirect/:file_id", s.getRedirect)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	docs.SwaggerInfo.BasePath = "/"
	log.Infof("serving Web at %v", addr)
	return http.Serve(s.ln, r)
}

func (s *Web) Close() {
	log.Info("closing Web")
	defer func() {
		log.Info("Web closed")
	}()
	if s.ln != nil {
		_ = s.ln.Close()
	}
}
