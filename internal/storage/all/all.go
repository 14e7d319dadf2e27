// Package all links every storage backend into the binary. Import it for
// side effects; backends register themselves with the storage factory.
package all

import (
	_ "github.com/SafetyMP/EHS-OSHA-DataReview/internal/storage/generic"
	_ "github.com/SafetyMP/EHS-OSHA-DataReview/internal/storage/postgres"
	_ "github.com/SafetyMP/EHS-OSHA-DataReview/internal/storage/sqlite"
)
