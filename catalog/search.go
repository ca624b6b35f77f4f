// Package catalog 在記憶體中的商品列表上進行篩選、排序與分頁
package catalog

import (
	"sort"
	"strings"

	"storefront/models"
	"storefront/slug"
)

type Facet struct {
	ID    uint   `json:"id"`
	Name  string `json:"name"`
	Count int    `json:"count"`
}

type Result struct {
	Products       []models.Product
	TotalCount     int
	CategoryFacets []Facet
	BrandFacets    []Facet
}

// Search 不會修改傳入的切片
func Search(products []models.Product, q Query) Result {
	terms := strings.Fields(slug.Fold(q.Text))

	matched := make([]models.Product, 0, len(products))
	for i := range products {
		if matches(&products[i], q, terms) {
			matched = append(matched, products[i])
		}
	}

	sortProducts(matched, q.Sort)

	result := Result{
		TotalCount:     len(matched),
		CategoryFacets: categoryFacets(matched),
		BrandFacets:    brandFacets(matched),
	}

	//offset超出搜尋結果時回傳空頁
	if q.Offset >= len(matched) {
		result.Products = []models.Product{}
		return result
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}
	end := q.Offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	result.Products = matched[q.Offset:end]
	return result
}

func matches(p *models.Product, q Query, terms []string) bool {
	if !p.Active {
		return false
	}
	if q.InStock && p.Stock == 0 {
		return false
	}
	if q.Featured && !p.Featured {
		return false
	}
	if q.MinPrice != nil && p.Price < *q.MinPrice {
		return false
	}
	if q.MaxPrice != nil && p.Price > *q.MaxPrice {
		return false
	}
	if q.BrandID != 0 && (p.BrandID == nil || *p.BrandID != q.BrandID) {
		return false
	}
	//商品必須包含所有指定標籤
	for _, categoryID := range q.CategoryIDs {
		if !p.HasCategory(categoryID) {
			return false
		}
	}
	if len(terms) == 0 {
		return true
	}

	haystack := slug.Fold(searchText(p))
	for _, term := range terms {
		if !strings.Contains(haystack, term) {
			return false
		}
	}
	return true
}

func searchText(p *models.Product) string {
	parts := []string{p.Name, p.SKU, p.Description}
	if p.Brand != nil {
		parts = append(parts, p.Brand.Name)
	}
	return strings.Join(parts, " ")
}

func sortProducts(products []models.Product, by Sort) {
	less := func(a, b *models.Product) (bool, bool) { return false, false }
	switch by {
	case SortPriceAsc:
		less = func(a, b *models.Product) (bool, bool) { return a.Price < b.Price, a.Price != b.Price }
	case SortPriceDesc:
		less = func(a, b *models.Product) (bool, bool) { return a.Price > b.Price, a.Price != b.Price }
	case SortName:
		less = func(a, b *models.Product) (bool, bool) {
			an, bn := slug.Fold(a.Name), slug.Fold(b.Name)
			return an < bn, an != bn
		}
	case SortStock:
		less = func(a, b *models.Product) (bool, bool) { return a.Stock > b.Stock, a.Stock != b.Stock }
	default:
		// 最新商品在前
		sort.SliceStable(products, func(i, j int) bool { return products[i].ID > products[j].ID })
		return
	}

	// 相同時以ID遞增排序，確保分頁穩定
	sort.SliceStable(products, func(i, j int) bool {
		if lt, decided := less(&products[i], &products[j]); decided {
			return lt
		}
		return products[i].ID < products[j].ID
	})
}

func categoryFacets(products []models.Product) []Facet {
	counts := map[uint]*Facet{}
	for _, p := range products {
		for _, c := range p.Categories {
			f, ok := counts[c.ID]
			if !ok {
				f = &Facet{ID: c.ID, Name: c.Name}
				counts[c.ID] = f
			}
			f.Count++
		}
	}
	return sortFacets(counts)
}

func brandFacets(products []models.Product) []Facet {
	counts := map[uint]*Facet{}
	for _, p := range products {
		if p.BrandID == nil {
			continue
		}
		f, ok := counts[*p.BrandID]
		if !ok {
			f = &Facet{ID: *p.BrandID}
			if p.Brand != nil {
				f.Name = p.Brand.Name
			}
			counts[*p.BrandID] = f
		}
		f.Count++
	}
	return sortFacets(counts)
}

func sortFacets(counts map[uint]*Facet) []Facet {
	facets := make([]Facet, 0, len(counts))
	for _, f := range counts {
		facets = append(facets, *f)
	}
	sort.Slice(facets, func(i, j int) bool {
		if facets[i].Count != facets[j].Count {
			return facets[i].Count > facets[j].Count
		}
		return facets[i].Name < facets[j].Name
	})
	return facets
}
