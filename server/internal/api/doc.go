// Package api implements the HTTP REST API for the SPC server.
//
// New(repo, opts) returns an http.Handler that serves:
//
//	GET    /api/v1/health           status plus dataset and record counts
//	GET    /api/v1/summary          working-set summary; {"count":0,"state":"empty"} with no data
//	GET    /api/v1/records          ?q= serial filter, ?sort= index|serial|value|usl|lsl, ?order=asc|desc, ?limit=
//	GET    /api/v1/records/tail     last ?n= records (default 20)
//	GET    /api/v1/histogram        ?bins= (default 15)
//	GET    /api/v1/datasets         dataset metadata in ingestion order
//	POST   /api/v1/datasets         multipart upload, one dataset per "file" part
//	DELETE /api/v1/datasets         clear the repository
//	GET    /api/v1/datasets/{id}    one dataset with its records
//	DELETE /api/v1/datasets/{id}    remove one dataset
//	GET    /api/v1/export.csv       working set as CSV
//	GET    /api/v1/insights         deterministic hints about the working set
//	GET    /api/v1/alerts           firing and recently resolved alerts
//	GET    /api/data                whole collection as a JSON array
//	POST   /api/data                replace the whole collection
//
// Errors are JSON {"error": "..."}; a wrong method returns 405.
package api
