// Package api is the HTTP transport of catalogd.
//
// Routes:
//
//	POST   <callback path>                         executor callbacks
//	POST   /v1/hosts                               create hosts
//	POST   /v1/hosts/backfill                      register existing hosts (JSON or text/csv)
//	PUT    /v1/hosts/deploy                        deploy hosts
//	PUT    /v1/hosts/restart                       restart hosts
//	DELETE /v1/hosts/{serviceId}/{hostId}          delete a host
//	POST   /v1/endpoints                           create an endpoint
//	PUT    /v1/endpoints/{endpointId}              update an endpoint
//	DELETE /v1/endpoints/{serviceId}/{endpointId}  delete an endpoint
//	POST   /v1/memberships                         add memberships
//	DELETE /v1/memberships/{hostId}/{endpointId}   remove a membership
//	GET    /v1/workitems                           list live work items
//	GET    /v1/audits/{serviceId}                  list audit records
//	GET    /healthz                                store health
//	GET    /metrics                                prometheus metrics
//
// Catalog requests answer 202 with the ids of the chain they started. Classified errors map
// to 400 (validation), 404 (not found), 409 (busy or duplicate) and 500 otherwise.
package api
