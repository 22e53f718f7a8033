package api

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/annel0/lightstage/internal/scene"
)

func (rs *RestServer) handleListLibrary(c *gin.Context) {
	entries, err := rs.library.List(c.Request.Context())
	if err != nil {
		rs.fail(c, statusFor(err), err)
		return
	}
	ok(c, "Библиотека пресетов", entries)
}

func (rs *RestServer) handleGetLibraryPreset(c *gin.Context) {
	s, err := rs.library.Load(c.Request.Context(), c.Param("name"))
	if err != nil {
		rs.fail(c, statusFor(err), err)
		return
	}
	ok(c, "Пресет", scene.Export(s))
}

// handleSaveLibraryPreset сохраняет тело запроса (пресет) или текущий черновик.
func (rs *RestServer) handleSaveLibraryPreset(c *gin.Context) {
	data, err := io.ReadAll(c.Request.Body)
	if err != nil {
		rs.fail(c, http.StatusBadRequest, err)
		return
	}
	s := rs.sync.Control().Draft()
	if len(data) > 0 {
		if s, err = scene.Import(data); err != nil {
			rs.fail(c, statusFor(err), err)
			return
		}
	}
	name := c.Param("name")
	if err := rs.library.Save(c.Request.Context(), name, s); err != nil {
		rs.fail(c, statusFor(err), err)
		return
	}
	rs.log.Info("💾 Пресет %s сохранён: %d слоёв", name, s.Len())
	ok(c, "Пресет сохранён", gin.H{"name": name, "layers": s.Len()})
}

func (rs *RestServer) handleDeleteLibraryPreset(c *gin.Context) {
	if err := rs.library.Delete(c.Request.Context(), c.Param("name")); err != nil {
		rs.fail(c, statusFor(err), err)
		return
	}
	ok(c, "Пресет удалён", nil)
}

// handleLoadLibraryPreset заменяет черновик пресетом из библиотеки.
func (rs *RestServer) handleLoadLibraryPreset(c *gin.Context) {
	s, err := rs.library.Load(c.Request.Context(), c.Param("name"))
	if err != nil {
		rs.fail(c, statusFor(err), err)
		return
	}
	if err := rs.sync.Control().LoadScene(c.Request.Context(), s); err != nil {
		rs.fail(c, statusFor(err), err)
		return
	}
	ok(c, "Пресет загружен", scene.Export(s))
}
