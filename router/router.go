package router

import (
	"PicStore/internal/handler"
	"PicStore/utils"

	"github.com/gin-gonic/gin"
)

// InitRouter builds API routes.
func InitRouter(h *handler.Handler, jwtSecret string, maxMultipartMemory int64) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), utils.RequestLogger(), utils.CORSMiddleware())
	if maxMultipartMemory > 0 {
		r.MaxMultipartMemory = maxMultipartMemory
	}

	api := r.Group("/api")
	{
		pictures := api.Group("/pictures")
		{
			pictures.POST("", h.UploadPicture)
			pictures.GET("/:id", h.GetPicture)
		}

		products := api.Group("/products")
		{
			products.POST("", h.CreateProduct)
			products.DELETE("/:id", h.DeleteProduct)
		}

		admin := api.Group("/admin")
		admin.Use(utils.AuthMiddleware(jwtSecret), utils.RequireRole(utils.RoleAdmin))
		{
			admin.POST("/pictures/sweep", h.SweepPictures)
		}
	}
	return r
}
