// Package geocode provides the address autocomplete component: a small
// net/http handler that forwards queries to a geocoding service and caches
// the suggestions it returns.
//
// The handler responds to GET and HEAD requests and supports query and limit
// parameters. Queries shorter than the configured minimum return an empty
// data array without calling the service.
package geocode
