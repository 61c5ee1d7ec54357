package utils

import "github.com/google/uuid"

// GenBoardID returns a new board identifier.
func GenBoardID() string { return "brd_" + uuid.NewString() }

// GenResourceID returns a new resource identifier.
func GenResourceID() string { return "res_" + uuid.NewString() }

// GenDocID returns a new shared document identifier.
func GenDocID() string { return "doc_" + uuid.NewString() }

// GenEventID returns a new opaque event identifier.
func GenEventID() string { return "evt_" + uuid.NewString() }
