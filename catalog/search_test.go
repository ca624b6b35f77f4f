package catalog

import (
	"net/url"
	"testing"

	"storefront/models"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func product(id uint, name string, price, stock uint, opts ...func(*models.Product)) models.Product {
	p := models.Product{
		Model:  gorm.Model{ID: id},
		Name:   name,
		SKU:    name,
		Price:  price,
		Stock:  stock,
		Active: true,
	}
	for _, opt := range opts {
		opt(&p)
	}
	return p
}

func inCategories(categories ...models.Category) func(*models.Product) {
	return func(p *models.Product) { p.Categories = categories }
}

func ofBrand(brand models.Brand) func(*models.Product) {
	return func(p *models.Product) {
		id := brand.ID
		p.BrandID = &id
		p.Brand = &brand
	}
}

var (
	robots  = models.Category{Model: gorm.Model{ID: 1}, Name: "Robots"}
	sensors = models.Category{Model: gorm.Model{ID: 2}, Name: "Sensors"}
	kits    = models.Category{Model: gorm.Model{ID: 3}, Name: "Kits"}
	acme    = models.Brand{Model: gorm.Model{ID: 10}, Name: "Acmé"}
	zeta    = models.Brand{Model: gorm.Model{ID: 11}, Name: "Zeta"}
)

func fixture() []models.Product {
	return []models.Product{
		product(1, "Rover Kit", 2500, 4, inCategories(robots, kits), ofBrand(acme)),
		product(2, "Ultrasonic Sensor", 120, 0, inCategories(sensors), ofBrand(zeta)),
		product(3, "Line Follower Kit", 900, 12, inCategories(robots, kits, sensors), ofBrand(acme)),
		product(4, "Servo Motor", 150, 30, inCategories(robots)),
		product(5, "Hidden Prototype", 100, 1, func(p *models.Product) { p.Active = false }),
		product(6, "Gyro Sensor", 120, 8, inCategories(sensors), func(p *models.Product) {
			p.Featured = true
			p.Description = "6-axis IMU"
		}),
	}
}

func ids(products []models.Product) []uint {
	out := make([]uint, 0, len(products))
	for _, p := range products {
		out = append(out, p.ID)
	}
	return out
}

func uintPtr(v uint) *uint { return &v }

func TestSearch(t *testing.T) {
	tests := []struct {
		name  string
		query Query
		want  []uint
		total int
	}{
		{"default newest first excludes inactive", Query{Limit: 10}, []uint{6, 4, 3, 2, 1}, 5},
		{"all categories required", Query{CategoryIDs: []uint{1, 3}, Limit: 10}, []uint{3, 1}, 2},
		{"brand", Query{BrandID: 10, Limit: 10}, []uint{3, 1}, 2},
		{"in stock", Query{InStock: true, Sort: SortPriceAsc, Limit: 10}, []uint{6, 4, 3, 1}, 4},
		{"price range inclusive", Query{MinPrice: uintPtr(120), MaxPrice: uintPtr(150), Sort: SortPriceAsc, Limit: 10}, []uint{2, 6, 4}, 3},
		{"price desc", Query{Sort: SortPriceDesc, Limit: 2}, []uint{1, 3}, 5},
		{"name sort", Query{Sort: SortName, Limit: 10}, []uint{6, 3, 1, 4, 2}, 5},
		{"stock sort", Query{Sort: SortStock, Limit: 3}, []uint{4, 3, 6}, 5},
		{"text terms all match", Query{Text: "kit robot", Limit: 10}, []uint{}, 0},
		{"text matches name", Query{Text: "KIT rover", Limit: 10}, []uint{1}, 1},
		{"text matches description", Query{Text: "imu", Limit: 10}, []uint{6}, 1},
		{"text matches brand without accents", Query{Text: "acme", Limit: 10}, []uint{3, 1}, 2},
		{"featured", Query{Featured: true, Limit: 10}, []uint{6}, 1},
		{"offset page", Query{Sort: SortPriceAsc, Limit: 2, Offset: 2}, []uint{4, 3}, 5},
		{"offset beyond result", Query{Limit: 10, Offset: 99}, []uint{}, 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Search(fixture(), tt.query)
			if diff := cmp.Diff(tt.want, ids(result.Products)); diff != "" {
				t.Errorf("products mismatch (-want +got):\n%s", diff)
			}
			assert.Equal(t, tt.total, result.TotalCount)
		})
	}
}

func TestSearchFacets(t *testing.T) {
	result := Search(fixture(), Query{CategoryIDs: []uint{1}, Limit: 1})

	want := []Facet{
		{ID: 1, Name: "Robots", Count: 3},
		{ID: 3, Name: "Kits", Count: 2},
		{ID: 2, Name: "Sensors", Count: 1},
	}
	if diff := cmp.Diff(want, result.CategoryFacets); diff != "" {
		t.Errorf("category facets (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]Facet{{ID: 10, Name: "Acmé", Count: 2}}, result.BrandFacets); diff != "" {
		t.Errorf("brand facets (-want +got):\n%s", diff)
	}
	assert.Len(t, result.Products, 1)
}

func TestSearchDoesNotReorderInput(t *testing.T) {
	products := fixture()
	Search(products, Query{Sort: SortPriceDesc, Limit: 10})
	assert.Equal(t, []uint{1, 2, 3, 4, 5, 6}, ids(products))
}

func TestParseQuery(t *testing.T) {
	q, err := ParseQuery(url.Values{
		"q":          {"  rover "},
		"categories": {"1, 3,"},
		"brand":      {"10"},
		"minPrice":   {"100"},
		"maxPrice":   {"3000"},
		"inStock":    {"true"},
		"sort":       {"price_desc"},
		"limit":      {"500"},
		"offset":     {"20"},
	})
	require.NoError(t, err)
	assert.Equal(t, "rover", q.Text)
	assert.Equal(t, []uint{1, 3}, q.CategoryIDs)
	assert.Equal(t, uint(10), q.BrandID)
	assert.Equal(t, uint(100), *q.MinPrice)
	assert.Equal(t, uint(3000), *q.MaxPrice)
	assert.True(t, q.InStock)
	assert.Equal(t, SortPriceDesc, q.Sort)
	assert.Equal(t, MaxLimit, q.Limit)
	assert.Equal(t, 20, q.Offset)
}

func TestParseQueryDefaults(t *testing.T) {
	q, err := ParseQuery(url.Values{})
	require.NoError(t, err)
	assert.Equal(t, DefaultLimit, q.Limit)
	assert.Equal(t, SortNewest, q.Sort)
	assert.Nil(t, q.MinPrice)
}

func TestParseQueryErrors(t *testing.T) {
	for name, values := range map[string]url.Values{
		"bad limit":       {"limit": {"ten"}},
		"zero limit":      {"limit": {"0"}},
		"negative offset": {"offset": {"-1"}},
		"bad category":    {"categories": {"1,x"}},
		"bad price":       {"minPrice": {"-5"}},
		"inverted range":  {"minPrice": {"10"}, "maxPrice": {"5"}},
		"bad sort":        {"sort": {"random"}},
		"bad bool":        {"inStock": {"maybe"}},
	} {
		t.Run(name, func(t *testing.T) {
			_, err := ParseQuery(values)
			assert.ErrorIs(t, err, ErrInvalidQuery)
		})
	}
}
