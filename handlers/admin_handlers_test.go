package handlers

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"storefront/models"
	"storefront/testutil"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func adminRoutes(r *gin.Engine, h *Handler) {
	r.GET("/products", h.GetProductListHandler)
	r.GET("/projects/:slug", h.GetProjectHandler)
	r.GET("/sitemap.xml", h.SitemapHandler)
	r.GET("/admin/dashboard", h.GetDashboardHandler)
	r.GET("/admin/users", h.GetUserListHandler)
	r.PATCH("/admin/users/:userID/role", h.UpdateUserRoleHandler)
	r.POST("/admin/image", h.UploadImageHandler)
	r.GET("/admin/products/:productID", h.GetProductAllDataHandler)
	r.POST("/admin/products", h.CreateProductHandler)
	r.POST("/admin/products/import", h.ImportProductsHandler)
	r.PATCH("/admin/products/:productID", h.UpdateProductHandler)
	r.DELETE("/admin/products/:productID", h.DeleteProductHandler)
	r.GET("/admin/categories", h.GetAdminCategoryListHandler)
	r.POST("/admin/categories", h.CreateCategoryHandler)
	r.PATCH("/admin/categories/:categoryID", h.RenameCategoryHandler)
	r.DELETE("/admin/categories/:categoryID", h.DeleteCategoryHandler)
	r.POST("/admin/brands", h.CreateBrandHandler)
	r.PATCH("/admin/brands/:brandID", h.UpdateBrandHandler)
	r.DELETE("/admin/brands/:brandID", h.DeleteBrandHandler)
	r.GET("/admin/projects", h.GetAdminProjectListHandler)
	r.POST("/admin/projects", h.CreateProjectHandler)
	r.PATCH("/admin/projects/:projectID", h.UpdateProjectHandler)
	r.PUT("/admin/projects/:projectID/products", h.SetProjectProductsHandler)
	r.DELETE("/admin/projects/:projectID", h.DeleteProjectHandler)
	r.GET("/admin/orders", h.GetAdminOrderListHandler)
	r.GET("/admin/orders/:orderID", h.GetAdminOrderHandler)
	r.PATCH("/admin/orders/:orderID/status", h.UpdateOrderStatusHandler)
	r.POST("/admin/sitemap", h.RebuildSitemapHandler)
	r.POST("/orders", h.SendOrderHandler)
}

func newAdminServer(t *testing.T) (*server, http.Header) {
	s := newServer(t, adminRoutes)
	admin := testutil.CreateUser(t, s.env.DB, "storeadmin", models.RoleAdmin)
	return s, s.login(admin)
}

func idOf(body map[string]any, key string) string {
	return strconv.Itoa(int(body[key].(map[string]any)["ID"].(float64)))
}

func TestCreateAndUpdateProduct(t *testing.T) {
	s, admin := newAdminServer(t)
	category := testutil.CreateCategory(t, s.env.DB, "Sensors")
	brand := testutil.CreateBrand(t, s.env.DB, "Adafruit")

	// 建立快取，確認新增商品後會同步
	_, err := s.h.products.All(context.Background())
	require.NoError(t, err)

	w := s.do(http.MethodPost, "/admin/products", map[string]any{
		"name":        "Line Sensor",
		"sku":         "SEN-LINE",
		"price":       120,
		"stock":       8,
		"brandID":     brand.ID,
		"categoryIDs": []uint{category.ID},
	}, admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	product := decode(t, w)["product"].(map[string]any)
	assert.Equal(t, "line-sensor-sen-line", product["Slug"])
	assert.Equal(t, true, product["Active"])
	assert.Len(t, product["Categories"], 1)
	id := strconv.Itoa(int(product["ID"].(float64)))

	w = s.do(http.MethodGet, "/products", nil, nil)
	assert.EqualValues(t, 1, decode(t, w)["totalCount"])

	tests := []struct {
		name string
		body map[string]any
		want int
	}{
		{"duplicate sku", map[string]any{"name": "Copy", "sku": "SEN-LINE", "price": 1}, http.StatusConflict},
		{"missing price", map[string]any{"name": "Copy", "sku": "SEN-COPY"}, http.StatusBadRequest},
		{"unknown brand", map[string]any{"name": "Copy", "sku": "SEN-COPY", "price": 1, "brandID": 999}, http.StatusBadRequest},
		{"unknown category", map[string]any{"name": "Copy", "sku": "SEN-COPY", "price": 1, "categoryIDs": []uint{999}}, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, s.do(http.MethodPost, "/admin/products", tt.body, admin).Code)
		})
	}

	w = s.do(http.MethodPatch, "/admin/products/"+id, map[string]any{
		"price":       150,
		"active":      false,
		"brandID":     0,
		"categoryIDs": []uint{},
	}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	product = decode(t, w)["product"].(map[string]any)
	assert.EqualValues(t, 150, product["Price"])
	assert.EqualValues(t, 8, product["Stock"], "未提供的欄位不變")
	assert.Nil(t, product["BrandID"])
	assert.Empty(t, product["Categories"])

	// 下架後不出現在公開列表，後台仍可查詢
	w = s.do(http.MethodGet, "/products", nil, nil)
	assert.EqualValues(t, 0, decode(t, w)["totalCount"])
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/admin/products/"+id, nil, admin).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPatch, "/admin/products/999", map[string]any{"price": 1}, admin).Code)
}

func TestProductSlugFollowsNameAndSKU(t *testing.T) {
	s, admin := newAdminServer(t)
	testutil.CreateProduct(t, s.env.DB, "Servo", "SV/1", 150, 3)

	// 不同SKU產生相同代稱
	w := s.do(http.MethodPost, "/admin/products", map[string]any{"name": "Servo", "sku": "SV-1", "price": 160}, admin)
	require.Equal(t, http.StatusConflict, w.Code, w.Body.String())
	assert.Equal(t, models.ErrSlugTaken.Error(), decode(t, w)["error"])

	w = s.do(http.MethodPost, "/admin/products", map[string]any{"name": "Micro Servo", "sku": "SV-1", "price": 160}, admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := idOf(decode(t, w), "product")

	w = s.do(http.MethodPatch, "/admin/products/"+id, map[string]any{"name": "Metal Servo"}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "metal-servo-sv-1", decode(t, w)["product"].(map[string]any)["Slug"])

	w = s.do(http.MethodPatch, "/admin/products/"+id, map[string]any{"name": "Servo"}, admin)
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestDeleteProductRemovesCartItems(t *testing.T) {
	s, admin := newAdminServer(t)
	buyer := testutil.CreateUser(t, s.env.DB, "robotmaker", models.RoleUser)
	servo := testutil.CreateProduct(t, s.env.DB, "SG90 Servo", "SRV-001", 90, 10)

	require.NoError(t, s.env.DB.Create(&models.Cart{UserID: buyer.ID, CartItems: []models.CartItem{{ProductID: servo.ID, Quantity: 1}}}).Error)

	id := strconv.Itoa(int(servo.ID))
	require.Equal(t, http.StatusOK, s.do(http.MethodDelete, "/admin/products/"+id, nil, admin).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/admin/products/"+id, nil, admin).Code)

	var items int64
	require.NoError(t, s.env.DB.Unscoped().Model(&models.CartItem{}).Where("product_id = ?", servo.ID).Count(&items).Error)
	assert.Zero(t, items)

	// 後台仍可查到已刪除的商品
	w := s.do(http.MethodGet, "/admin/products/"+id, nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotNil(t, decode(t, w)["product"].(map[string]any)["DeletedAt"])
}

func multipartBody(t *testing.T, field, filename string, content []byte) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)
	part, err := writer.CreateFormFile(field, filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return &buf, writer.FormDataContentType()
}

func (s *server) upload(path, field, filename string, content []byte, header http.Header) *httptest.ResponseRecorder {
	s.t.Helper()
	body, contentType := multipartBody(s.t, field, filename, content)
	req := httptest.NewRequest(http.MethodPost, path, body)
	req.Header.Set("Content-Type", contentType)
	for key, values := range header {
		for _, value := range values {
			req.Header.Add(key, value)
		}
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 2, 2))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestUploadImage(t *testing.T) {
	s, admin := newAdminServer(t)

	w := s.upload("/admin/image", "image", "Servo Photo.PNG", pngBytes(t), admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	imagePath := decode(t, w)["imagePath"].(string)
	assert.True(t, strings.HasPrefix(imagePath, "/uploads/"))
	assert.True(t, strings.HasSuffix(imagePath, ".png"))
	_, err := os.Stat(filepath.Join(s.h.cfg.Server.UploadsDir, strings.TrimPrefix(imagePath, "/uploads/")))
	assert.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, s.upload("/admin/image", "image", "notes.txt", []byte("hello"), admin).Code)
	assert.Equal(t, http.StatusBadRequest, s.upload("/admin/image", "image", "fake.jpg", []byte("plain text, not a jpeg"), admin).Code)
	assert.Equal(t, http.StatusBadRequest, s.upload("/admin/image", "photo", "servo.png", pngBytes(t), admin).Code)

	large := append(pngBytes(t), make([]byte, maxImageSize)...)
	assert.Equal(t, http.StatusRequestEntityTooLarge, s.upload("/admin/image", "image", "big.png", large, admin).Code)
}

func TestImportProducts(t *testing.T) {
	s, admin := newAdminServer(t)
	testutil.CreateProduct(t, s.env.DB, "Old Name", "SKU-1", 10, 1)

	csv := "sku,name,price,stock,brand,categories\n" +
		"SKU-1,Arduino Nano,350,12,Arduino,Boards\n" +
		"SKU-2,Raspberry Pi Pico,150,30,Raspberry Pi,Boards;Microcontrollers\n" +
		"SKU-3,Broken,abc,1,,\n"

	w := s.upload("/admin/products/import?dryRun=true", "file", "products.csv", []byte(csv), admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result := decode(t, w)["result"].(map[string]any)
	assert.Equal(t, true, result["dryRun"])
	assert.EqualValues(t, 1, result["created"])
	var count int64
	require.NoError(t, s.env.DB.Model(&models.Product{}).Count(&count).Error)
	assert.EqualValues(t, 1, count)

	w = s.upload("/admin/products/import", "file", "products.csv", []byte(csv), admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	result = decode(t, w)["result"].(map[string]any)
	assert.EqualValues(t, 1, result["created"])
	assert.EqualValues(t, 1, result["updated"])
	assert.EqualValues(t, 1, result["skipped"])
	require.Len(t, result["errors"], 1)
	assert.EqualValues(t, 4, result["errors"].([]any)[0].(map[string]any)["row"])

	w = s.do(http.MethodGet, "/products?categories="+categoryID(t, s, "boards"), nil, nil)
	assert.EqualValues(t, 2, decode(t, w)["totalCount"])

	w = s.upload("/admin/products/import", "file", "products.csv", []byte("name,price\nx,1\n"), admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, http.StatusBadRequest, s.upload("/admin/products/import?dryRun=maybe", "file", "products.csv", []byte(csv), admin).Code)
}

func categoryID(t *testing.T, s *server, slugValue string) string {
	t.Helper()
	var category models.Category
	require.NoError(t, s.env.DB.Where("slug = ?", slugValue).First(&category).Error)
	return strconv.Itoa(int(category.ID))
}

func TestCategoryAndBrandAdmin(t *testing.T) {
	s, admin := newAdminServer(t)
	brand := testutil.CreateBrand(t, s.env.DB, "Pololu")

	w := s.do(http.MethodPost, "/admin/categories", map[string]string{"name": "Motors"}, admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	motors := decode(t, w)["category"].(map[string]any)
	assert.Equal(t, "motors", motors["Slug"])
	id := strconv.Itoa(int(motors["ID"].(float64)))
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/admin/categories", map[string]string{"name": "Motors"}, admin).Code)

	var category models.Category
	require.NoError(t, s.env.DB.Where("slug = ?", "motors").First(&category).Error)
	motor := testutil.CreateProduct(t, s.env.DB, "DC Motor", "MOT-001", 120, 3,
		testutil.WithCategories(category), testutil.WithBrand(&brand))

	w = s.do(http.MethodGet, "/admin/categories", nil, admin)
	rows := decode(t, w)["categories"].([]any)
	require.Len(t, rows, 1)
	assert.EqualValues(t, 1, rows[0].(map[string]any)["productCount"])

	w = s.do(http.MethodPatch, "/admin/categories/"+id, map[string]string{"name": "Motors & Drivers"}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "motors-drivers", decode(t, w)["category"].(map[string]any)["Slug"])

	require.Equal(t, http.StatusOK, s.do(http.MethodDelete, "/admin/categories/"+id, nil, admin).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodDelete, "/admin/categories/"+id, nil, admin).Code)
	var links int64
	require.NoError(t, s.env.DB.Table("category_products").Where("product_id = ?", motor.ID).Count(&links).Error)
	assert.Zero(t, links)

	brandID := strconv.Itoa(int(brand.ID))
	w = s.do(http.MethodPatch, "/admin/brands/"+brandID, map[string]string{"name": "Pololu Robotics", "description": "Motor drivers"}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "pololu-robotics", decode(t, w)["brand"].(map[string]any)["Slug"])

	w = s.do(http.MethodPost, "/admin/brands", map[string]string{"name": "SparkFun"}, admin)
	require.Equal(t, http.StatusCreated, w.Code)

	require.Equal(t, http.StatusOK, s.do(http.MethodDelete, "/admin/brands/"+brandID, nil, admin).Code)
	var reloaded models.Product
	require.NoError(t, s.env.DB.First(&reloaded, motor.ID).Error)
	assert.Nil(t, reloaded.BrandID, "刪除品牌後商品保留但取消品牌")
}

func TestProjectAdmin(t *testing.T) {
	s, admin := newAdminServer(t)
	servo := testutil.CreateProduct(t, s.env.DB, "SG90 Servo", "SRV-001", 90, 10)
	board := testutil.CreateProduct(t, s.env.DB, "Arduino Uno", "ARD-001", 700, 4)

	w := s.do(http.MethodPost, "/admin/projects", map[string]any{
		"title":      "Line Following Robot",
		"difficulty": "beginner",
		"body":       "Step 1...",
		"productIDs": []uint{servo.ID},
	}, admin)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	project := decode(t, w)["project"].(map[string]any)
	assert.Equal(t, "line-following-robot", project["Slug"])
	assert.Len(t, project["Products"], 1)
	id := strconv.Itoa(int(project["ID"].(float64)))

	// 未發佈的專題不公開
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/projects/line-following-robot", nil, nil).Code)

	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPost, "/admin/projects", map[string]any{"title": "X", "difficulty": "expert"}, admin).Code)
	assert.Equal(t, http.StatusConflict, s.do(http.MethodPost, "/admin/projects", map[string]any{"title": "Line Following Robot", "difficulty": "advanced"}, admin).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPut, "/admin/projects/"+id+"/products", map[string]any{"productIDs": []uint{999}}, admin).Code)

	w = s.do(http.MethodPatch, "/admin/projects/"+id, map[string]any{"published": true}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodPut, "/admin/projects/"+id+"/products", map[string]any{"productIDs": []uint{servo.ID, board.ID}}, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	w = s.do(http.MethodGet, "/projects/line-following-robot", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["project"].(map[string]any)["Products"], 2)

	w = s.do(http.MethodGet, "/sitemap.xml", nil, nil)
	assert.Contains(t, w.Body.String(), "/projects/line-following-robot")

	w = s.do(http.MethodGet, "/admin/projects", nil, admin)
	assert.EqualValues(t, 1, decode(t, w)["totalCount"])

	require.Equal(t, http.StatusOK, s.do(http.MethodDelete, "/admin/projects/"+id, nil, admin).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodGet, "/projects/line-following-robot", nil, nil).Code)
}

func TestAdminOrdersAndDashboard(t *testing.T) {
	s, admin := newAdminServer(t)
	buyer := testutil.CreateUser(t, s.env.DB, "robotmaker", models.RoleUser)
	kit := testutil.CreateProduct(t, s.env.DB, "Robot Kit", "KIT-001", 500, 6)

	w := s.do(http.MethodPost, "/orders", map[string]any{
		"name":           "Ada",
		"phone":          "0912345678",
		"shippingMethod": "pickup",
		"paymentKind":    "transfer",
		"items":          []map[string]uint{{"productID": kit.ID, "quantity": 3}},
	}, s.login(buyer))
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	id := idOf(decode(t, w), "order")

	w = s.do(http.MethodGet, "/admin/orders?status=pending", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, decode(t, w)["totalCount"])
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodGet, "/admin/orders?status=lost", nil, admin).Code)

	w = s.do(http.MethodGet, "/admin/orders/"+id, nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []any{"paid", "cancelled"}, decode(t, w)["nextStatuses"])

	assert.Equal(t, http.StatusConflict, s.do(http.MethodPatch, "/admin/orders/"+id+"/status", map[string]string{"status": "delivered"}, admin).Code)
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPatch, "/admin/orders/"+id+"/status", map[string]string{"status": "lost"}, admin).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodPatch, "/admin/orders/"+id+"/status", map[string]string{"status": "paid"}, admin).Code)

	w = s.do(http.MethodGet, "/admin/dashboard", nil, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)
	counts := body["counts"].(map[string]any)
	assert.EqualValues(t, 2, counts["users"])
	assert.EqualValues(t, 1, counts["products"])
	assert.EqualValues(t, 1, counts["orders"])
	assert.EqualValues(t, 1500, body["revenue"])
	assert.Equal(t, []any{map[string]any{"status": "paid", "count": float64(1)}}, body["ordersByStatus"])
	lowStock := body["lowStock"].([]any)
	require.Len(t, lowStock, 1, "庫存3低於門檻5")
	assert.Equal(t, "KIT-001", lowStock[0].(map[string]any)["SKU"])
}

func TestUserRoleAdmin(t *testing.T) {
	s, admin := newAdminServer(t)
	buyer := testutil.CreateUser(t, s.env.DB, "robotmaker", models.RoleUser)
	s.login(buyer)

	w := s.do(http.MethodGet, "/admin/users?limit=1", nil, admin)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode(t, w)
	assert.EqualValues(t, 2, body["totalCount"])
	users := body["userList"].([]any)
	require.Len(t, users, 1)
	assert.Equal(t, "storeadmin", users[0].(map[string]any)["username"])
	assert.NotContains(t, users[0].(map[string]any), "password")

	var self models.User
	require.NoError(t, s.env.DB.First(&self, "username = ?", "storeadmin").Error)
	selfID := strconv.Itoa(int(self.ID))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPatch, "/admin/users/"+selfID+"/role", map[string]string{"role": "user"}, admin).Code)

	buyerID := strconv.Itoa(int(buyer.ID))
	assert.Equal(t, http.StatusBadRequest, s.do(http.MethodPatch, "/admin/users/"+buyerID+"/role", map[string]string{"role": "owner"}, admin).Code)
	assert.Equal(t, http.StatusNotFound, s.do(http.MethodPatch, "/admin/users/999/role", map[string]string{"role": "admin"}, admin).Code)
	require.Equal(t, http.StatusOK, s.do(http.MethodPatch, "/admin/users/"+buyerID+"/role", map[string]string{"role": "admin"}, admin).Code)

	var tokens int64
	require.NoError(t, s.env.DB.Model(&models.LoginToken{}).Where("user_id = ?", buyer.ID).Count(&tokens).Error)
	assert.Zero(t, tokens, "變更身分後需重新登入")
}

func TestRebuildSitemap(t *testing.T) {
	s, admin := newAdminServer(t)
	testutil.CreateProduct(t, s.env.DB, "SG90 Servo", "SRV-001", 90, 10)

	w := s.do(http.MethodPost, "/admin/sitemap", nil, admin)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.EqualValues(t, 4, decode(t, w)["urls"])

	data, err := os.ReadFile(s.h.cfg.Server.SitemapPath)
	require.NoError(t, err)
	assert.Contains(t, string(data), "/products/sg90-servo-srv-001")
}
