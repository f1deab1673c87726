package config

import (
	"fmt"
	"os"

	"github.com/fjod/go_shop/internal/domain"
	"gopkg.in/yaml.v3"
)

type catalogFile struct {
	Products []catalogProduct `yaml:"products"`
}

type catalogProduct struct {
	ID          string   `yaml:"id"`
	Title       string   `yaml:"title"`
	Description string   `yaml:"description"`
	Price       float64  `yaml:"price"`
	Images      []string `yaml:"images"`
	Writer      string   `yaml:"writer"`
}

// LoadCatalog reads products from a YAML file of the form
//
//	products:
//	  - id: p1
//	    title: mug
//	    price: 10
func LoadCatalog(path string) ([]domain.Product, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open catalog file: %w", err)
	}
	defer file.Close()

	var cf catalogFile
	if err := yaml.NewDecoder(file).Decode(&cf); err != nil {
		return nil, fmt.Errorf("failed to decode catalog file: %w", err)
	}

	products := make([]domain.Product, 0, len(cf.Products))
	seen := make(map[string]bool, len(cf.Products))
	for i, p := range cf.Products {
		if p.ID == "" {
			return nil, fmt.Errorf("catalog entry %d has no id", i)
		}
		if seen[p.ID] {
			return nil, fmt.Errorf("catalog entry %d: duplicate id %q", i, p.ID)
		}
		if p.Price < 0 {
			return nil, fmt.Errorf("catalog entry %q: negative price", p.ID)
		}
		seen[p.ID] = true
		products = append(products, domain.Product{
			ID:          p.ID,
			Title:       p.Title,
			Description: p.Description,
			Price:       p.Price,
			Images:      p.Images,
			Writer:      p.Writer,
		})
	}
	return products, nil
}
