package vector

import (
	"context"

	"github.com/weaviate/weaviate-go-client/v5/weaviate"
	"github.com/weaviate/weaviate/entities/models"
)

// ClientAdapter exposes the schema and liveness calls of a Weaviate client
// behind SchemaClient so EnsureSchema can run against fakes.
type ClientAdapter struct {
	client *weaviate.Client
}

func NewClientAdapter(client *weaviate.Client) *ClientAdapter {
	return &ClientAdapter{client: client}
}

func (a *ClientAdapter) ClassExists(ctx context.Context, className string) (bool, error) {
	return a.client.Schema().ClassExistenceChecker().WithClassName(className).Do(ctx)
}

func (a *ClientAdapter) CreateClass(ctx context.Context, class *models.Class) error {
	return a.client.Schema().ClassCreator().WithClass(class).Do(ctx)
}

func (a *ClientAdapter) GetClass(ctx context.Context, className string) (*models.Class, error) {
	return a.client.Schema().ClassGetter().WithClassName(className).Do(ctx)
}

func (a *ClientAdapter) AddProperty(ctx context.Context, className string, property *models.Property) error {
	return a.client.Schema().PropertyCreator().WithClassName(className).WithProperty(property).Do(ctx)
}

// Live reports whether the Weaviate node answers its liveness probe.
func (a *ClientAdapter) Live(ctx context.Context) (bool, error) {
	return a.client.Misc().LiveChecker().Do(ctx)
}
