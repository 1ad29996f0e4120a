package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/kart-io/version"
)

// BuildInfo 是 /version 的响应体。
type BuildInfo struct {
	Service   string `json:"service,omitempty"`
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	Branch    string `json:"branch,omitempty"`
	TreeState string `json:"tree_state,omitempty"`
	BuiltAt   string `json:"built_at,omitempty"`
	Go        string `json:"go,omitempty"`
	Compiler  string `json:"compiler,omitempty"`
	Platform  string `json:"platform,omitempty"`
}

// Version 返回构建信息；brief 为 true 时只暴露版本号，供公网部署使用。
func Version(brief bool) gin.HandlerFunc {
	info := version.Get()
	body := BuildInfo{Version: info.GitVersion}
	if !brief {
		body.Service = info.ServiceName
		body.Commit = info.GitCommit
		body.Branch = info.GitBranch
		body.TreeState = info.GitTreeState
		body.BuiltAt = info.BuildDate
		body.Go = info.GoVersion
		body.Compiler = info.Compiler
		body.Platform = info.Platform
	}
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, body)
	}
}
