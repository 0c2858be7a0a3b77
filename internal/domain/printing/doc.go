// Package printing contains the secure printing domain.
// A submitted PDF is never sent to a printer as-is: every page is rasterized
// and the resulting images are rebuilt into a plain, image-only PDF before it
// reaches an OS print queue. This package holds the value types, the error
// taxonomy and the collaborator interfaces used by that pipeline.
package printing
