// Command clearwatch is the CLI and daemon entry point for the customs
// declaration automation service: fetching new declarations, retrieving
// barcode documents, and monitoring clearance status.
package main
