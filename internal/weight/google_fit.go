package weight

import (
	"context"
	"fmt"
	"time"

	"google.golang.org/api/fitness/v1"
	"google.golang.org/api/option"
)

// merged weight stream maintained by the Fit platform itself
const weightDataSourceID = "derived:com.google.weight:com.google.android.gms:merge_weight"

// GoogleFitSource reads body-weight points from the Google Fit REST
// API, authorized via a service-account credentials file.
type GoogleFitSource struct {
	service *fitness.Service
}

func NewGoogleFitSource(ctx context.Context, credentialsFile string) (*GoogleFitSource, error) {
	// https://github.com/googleapis/google-api-go-client/blob/master/fitness/v1/fitness-gen.go
	service, err := fitness.NewService(
		ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(fitness.FitnessBodyReadScope),
	)
	if err != nil {
		return nil, fmt.Errorf("unable to create fitness client: %w", err)
	}

	return &GoogleFitSource{
		service: service,
	}, nil
}

// WeightPoints returns the measurements of [from, to] as daily samples,
// the point timestamp truncated to its calendar day.
func (g *GoogleFitSource) WeightPoints(ctx context.Context, from, to time.Time) ([]Sample, error) {
	datasetID := fmt.Sprintf("%d-%d", from.UnixNano(), to.UnixNano())

	dataset, err := g.service.Users.DataSources.Datasets.
		Get("me", weightDataSourceID, datasetID).
		Context(ctx).
		Do()
	if err != nil {
		return nil, fmt.Errorf("get weight dataset %s: %w", datasetID, err)
	}

	var samples []Sample
	for _, point := range dataset.Point {
		if len(point.Value) == 0 || point.Value[0].FpVal <= 0 {
			continue
		}
		measuredAt := time.Unix(0, point.EndTimeNanos).UTC()
		samples = append(samples, Sample{
			Day:       measuredAt.Truncate(24 * time.Hour),
			Kilograms: point.Value[0].FpVal,
		})
	}

	return samples, nil
}
