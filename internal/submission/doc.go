// Package submission holds the records that flow through the harvesting
// pipeline together with the collaborator interfaces shared by its stages.
package submission
