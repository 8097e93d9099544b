// Package database provides the local diagnostics store.
//
// The file is SQLite and is shared by two users:
//
//	database/
//	├── database.go   # Connection setup and migrations (gorm)
//	└── audit/        # Audit trail of catalog operations
//
// The HTTP session table (scs sqlite3store) lives in the same file but manages
// its own schema. The background task queue (backlite) uses a sibling
// "-tasks" file.
//
// # Using Sub-packages
//
//	db, err := database.NewDatabase("./bookshelf.db", logger)
//	auditRepo := audit.NewRepository(db.DB)
//	events, total, err := auditRepo.GetEvents(workspaceID, 50, 0)
package database
