package domain

// ResultRow is one image joined with one of its processed results.
type ResultRow struct {
	ImageID          int64        `json:"image_id"`
	OriginalFilename string       `json:"original_filename"`
	ResultFilename   string       `json:"result_filename"`
	StoragePath      string       `json:"-"`
	Status           ResultStatus `json:"status"`
	ProcessingTimeMS *int64       `json:"processing_time_ms"`
	NodeID           *int64       `json:"node_id,omitempty"`
}

// Manifest describes a batch's results without touching storage.
type Manifest struct {
	BatchID               int64       `json:"batch_id"`
	TotalImages           int         `json:"total_images"`
	Successful            int         `json:"successful"`
	Failed                int         `json:"failed"`
	TotalProcessingTimeMS int64       `json:"total_processing_time_ms"`
	Images                []ResultRow `json:"images"`
}

// NodeBatchStats aggregates one node's work on a batch.
type NodeBatchStats struct {
	NodeID             int64   `json:"node_id"`
	NodeName           string  `json:"node_name"`
	Results            int     `json:"results"`
	Successful         int     `json:"successful"`
	AvgProcessingTimeMS float64 `json:"avg_processing_time_ms"`
}

// BatchMetrics combines a batch record with its manifest and per-node breakdown.
type BatchMetrics struct {
	Batch    Batch            `json:"batch"`
	Manifest *Manifest        `json:"manifest,omitempty"`
	Nodes    []NodeBatchStats `json:"nodes"`
}

// BuildManifest summarizes result rows per image. An image is successful when
// any of its results succeeded and failed when it has failures only, so
// successful + failed never exceeds total_images.
func BuildManifest(batchID int64, rows []ResultRow) Manifest {
	m := Manifest{BatchID: batchID, Images: rows}
	if m.Images == nil {
		m.Images = []ResultRow{}
	}
	outcome := map[int64]ResultStatus{}
	for _, r := range rows {
		if prev, seen := outcome[r.ImageID]; !seen || prev != ResultSuccess {
			outcome[r.ImageID] = r.Status
		}
		if r.ProcessingTimeMS != nil {
			m.TotalProcessingTimeMS += *r.ProcessingTimeMS
		}
	}
	for _, st := range outcome {
		switch st {
		case ResultSuccess:
			m.Successful++
		case ResultFailure:
			m.Failed++
		}
	}
	m.TotalImages = len(outcome)
	return m
}
