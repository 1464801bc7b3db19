package service

import (
	"context"

	"go.uber.org/zap"

	"datasetAnalyzer/dataset"
)

type DataService struct {
	cache  *dataset.Cache
	hgnc   *dataset.HGNCLoader
	wpp    *dataset.WPPLoader
	logger *zap.Logger
}

func NewDataService(cache *dataset.Cache, hgnc *dataset.HGNCLoader, wpp *dataset.WPPLoader, logger *zap.Logger) *DataService {
	return &DataService{cache: cache, hgnc: hgnc, wpp: wpp, logger: logger}
}

func (s *DataService) RefreshGenes(ctx context.Context) (*dataset.RefreshResult, error) {
	return s.hgnc.Refresh(ctx)
}

func (s *DataService) Genes(ctx context.Context) ([]map[string]any, error) {
	return s.cache.Genes(ctx)
}

func (s *DataService) GeneIDs(ctx context.Context) ([]string, error) {
	return s.cache.GeneIDs(ctx)
}

func (s *DataService) Gene(ctx context.Context, id string) (map[string]any, error) {
	return s.cache.Gene(ctx, id)
}

func (s *DataService) Clear(ctx context.Context) (int, error) {
	n, err := s.cache.Clear(ctx)
	if err != nil {
		return 0, err
	}
	s.logger.Info("Dataset cache cleared", zap.Int("records", n))
	return n, nil
}

func (s *DataService) RefreshPopulation(ctx context.Context) (*dataset.RefreshResult, error) {
	return s.wpp.Refresh(ctx)
}

func (s *DataService) PopulationYears(ctx context.Context) ([]int, error) {
	return s.cache.PopulationYears(ctx)
}
