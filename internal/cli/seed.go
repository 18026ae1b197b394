package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"storefront/internal/domain"
	"storefront/internal/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// catalogNamespace derives stable product ids for entries without one, so
// reseeding the same file updates rows instead of duplicating them.
var catalogNamespace = uuid.MustParse("6f1c3a52-9d7e-4b8a-a3c1-2e5d8f0b4c71")

// CatalogFile is the YAML layout accepted by storectl seed.
type CatalogFile struct {
	Products []CatalogEntry `yaml:"products"`
}

type CatalogEntry struct {
	ID          string `yaml:"id"`
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	Category    string `yaml:"category"`
	Price       string `yaml:"price"`
	ImageURL    string `yaml:"image_url"`
	Stock       int    `yaml:"stock"`
}

type productUpserter interface {
	Upsert(ctx context.Context, product *domain.Product) error
}

// LoadCatalog parses a catalog file. Every entry is checked before any is returned.
func LoadCatalog(r io.Reader) ([]*domain.Product, error) {
	var file CatalogFile
	decoder := yaml.NewDecoder(r)
	decoder.KnownFields(true)
	if err := decoder.Decode(&file); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}

	now := time.Now()
	seen := make(map[uuid.UUID]string, len(file.Products))
	products := make([]*domain.Product, 0, len(file.Products))
	for i, entry := range file.Products {
		name := strings.TrimSpace(entry.Name)
		if name == "" {
			return nil, fmt.Errorf("product %d: name is required", i+1)
		}
		if strings.TrimSpace(entry.Category) == "" {
			return nil, fmt.Errorf("product %q: category is required", name)
		}

		price, err := decimal.NewFromString(entry.Price)
		if err != nil {
			return nil, fmt.Errorf("product %q: invalid price %q", name, entry.Price)
		}
		if price.IsNegative() {
			return nil, fmt.Errorf("product %q: price must not be negative", name)
		}
		if entry.Stock < 0 {
			return nil, fmt.Errorf("product %q: stock must not be negative", name)
		}

		id := uuid.NewSHA1(catalogNamespace, []byte(name))
		if entry.ID != "" {
			if id, err = uuid.Parse(entry.ID); err != nil {
				return nil, fmt.Errorf("product %q: invalid id %q", name, entry.ID)
			}
		}
		if other, dup := seen[id]; dup {
			return nil, fmt.Errorf("product %q: id %s already used by %q", name, id, other)
		}
		seen[id] = name

		products = append(products, &domain.Product{
			ID:          id,
			Name:        name,
			Description: entry.Description,
			Category:    strings.TrimSpace(entry.Category),
			Price:       domain.RoundMoney(price),
			ImageURL:    entry.ImageURL,
			Stock:       entry.Stock,
			CreatedAt:   now,
			UpdatedAt:   now,
		})
	}
	return products, nil
}

func seedCatalog(ctx context.Context, store productUpserter, products []*domain.Product, log *zap.Logger) error {
	for _, product := range products {
		if err := store.Upsert(ctx, product); err != nil {
			return fmt.Errorf("product %q: %w", product.Name, err)
		}
		log.Debug("Seeded product", zap.Stringer("product_id", product.ID), zap.String("name", product.Name))
	}
	return nil
}

// NewSeedCommand creates the seed command.
func NewSeedCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "seed <catalog.yaml>",
		Short: "Insert or update catalog products from a YAML file",
		Long: `Insert or update catalog products from a YAML file.

Entries without an id get one derived from their name, so running the
same file twice leaves one row per product.

Example:
  storectl seed ./catalog.yaml`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			products, err := LoadCatalog(f)
			if err != nil {
				return err
			}

			db, err := rootOpts.openDB(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()

			if err := seedCatalog(cmd.Context(), repository.NewProductRepository(db), products, rootOpts.log); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "seeded %d products\n", len(products))
			return nil
		},
	}
}
