package errors

import (
	"fmt"
	"runtime"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/mantonx/scrollcast/internal/logger"
)

// StackFrame is one frame of a recovered panic's stack.
type StackFrame struct {
	Function string `json:"function"`
	File     string `json:"file"`
	Line     int    `json:"line"`
	Package  string `json:"package"`
}

func (f StackFrame) String() string {
	return fmt.Sprintf("%s.%s (%s:%d)", f.Package, f.Function, f.File, f.Line)
}

// captureStackTrace walks the caller stack, skipping the first skip frames.
func captureStackTrace(skip, maxDepth int) []StackFrame {
	frames := make([]StackFrame, 0, maxDepth)

	for i := skip; i < skip+maxDepth; i++ {
		pc, file, line, ok := runtime.Caller(i)
		if !ok {
			break
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			continue
		}

		funcName := fn.Name()
		var packageName string
		if lastSlash := strings.LastIndex(funcName, "/"); lastSlash >= 0 {
			if lastDot := strings.LastIndex(funcName[lastSlash:], "."); lastDot >= 0 {
				packageName = funcName[:lastSlash+lastDot]
				funcName = funcName[lastSlash+lastDot+1:]
			}
		} else if lastDot := strings.LastIndex(funcName, "."); lastDot >= 0 {
			packageName = funcName[:lastDot]
			funcName = funcName[lastDot+1:]
		}

		frames = append(frames, StackFrame{
			Function: funcName,
			File:     file,
			Line:     line,
			Package:  packageName,
		})
	}
	return frames
}

// RecoveryMiddleware turns a panic in a handler into a logged internal
// error. Responses that already started streaming are left alone.
func RecoveryMiddleware() gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered interface{}) {
		err, ok := recovered.(error)
		if !ok {
			err = fmt.Errorf("%v", recovered)
		}

		stack := captureStackTrace(3, 32)
		trace := make([]string, 0, len(stack))
		for _, f := range stack {
			trace = append(trace, f.String())
		}
		requestID, _ := c.Get("request_id")
		logger.Error("panic recovered",
			"error", err,
			"path", c.Request.URL.Path,
			"method", c.Request.Method,
			"request_id", requestID,
			"stack", strings.Join(trace, "\n"))

		if c.Writer.Written() {
			c.Abort()
			return
		}
		New(StageInternal, "internal server error", err).ToGinResponse(c)
		c.Abort()
	})
}
