package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/imrishuroy/sneakerstore/internal/catalog"
	"github.com/imrishuroy/sneakerstore/internal/money"
	"github.com/imrishuroy/sneakerstore/internal/validation"
)

func (a *api) listProducts(c *gin.Context) {
	list, err := a.Catalog.ListProducts(c.Request.Context(), catalog.ProductFilter{
		CategoryID: c.Query("category_id"),
		Brand:      c.Query("brand"),
	})
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"products": list})
}

func (a *api) getProduct(c *gin.Context) {
	p, err := a.Catalog.GetProduct(c.Request.Context(), c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	if !p.Active {
		c.JSON(http.StatusNotFound, gin.H{"error": "product_not_found"})
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *api) listCategories(c *gin.Context) {
	list, err := a.Catalog.ListCategories(c.Request.Context())
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"categories": list})
}

func productFromRequest(req validation.ProductRequest) catalog.Product {
	p := catalog.Product{
		CategoryID:     req.CategoryID,
		Name:           req.Name,
		Brand:          req.Brand,
		Description:    req.Description,
		PriceCents:     money.Cents(req.PriceCents),
		Images:         req.Images,
		SizesAvailable: req.SizesAvailable,
		Active:         true,
	}
	if req.Active != nil {
		p.Active = *req.Active
	}
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.SizesAvailable == nil {
		p.SizesAvailable = map[string]int{}
	}
	return p
}

func (a *api) createProduct(c *gin.Context) {
	var req validation.ProductRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	p, err := a.Catalog.CreateProduct(c.Request.Context(), productFromRequest(req))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.Header("Location", "/api/products/"+p.ID)
	c.JSON(http.StatusCreated, p)
}

// updateProduct replaces the product's details. Stock changes go through setStock.
func (a *api) updateProduct(c *gin.Context) {
	var req validation.ProductRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	p := productFromRequest(req)
	p.ID = c.Param("id")
	updated, err := a.Catalog.UpdateProduct(c.Request.Context(), p)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, updated)
}

func (a *api) deactivateProduct(c *gin.Context) {
	if err := a.Catalog.DeactivateProduct(c.Request.Context(), c.Param("id")); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (a *api) setStock(c *gin.Context) {
	var req validation.StockRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	ctx := c.Request.Context()
	if err := a.Catalog.SetStock(ctx, c.Param("id"), req.Size, req.Quantity); err != nil {
		a.fail(c, err)
		return
	}
	p, err := a.Catalog.GetProduct(ctx, c.Param("id"))
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (a *api) createCategory(c *gin.Context) {
	var req validation.CategoryRequest
	if err := validation.BindAndValidate(c, &req, a.v); err != nil {
		return
	}
	cat, err := a.Catalog.CreateCategory(c.Request.Context(), req.Name, req.Slug)
	if err != nil {
		a.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, cat)
}

func (a *api) deleteCategory(c *gin.Context) {
	if err := a.Catalog.DeleteCategory(c.Request.Context(), c.Param("id")); err != nil {
		a.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}
