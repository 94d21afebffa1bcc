package usecase

type ErrNotFound string

func (e ErrNotFound) Error() string { return string(e) + " not found" }

type ErrConflict string

func (e ErrConflict) Error() string { return string(e) }

type ErrBadRequest string

func (e ErrBadRequest) Error() string { return string(e) }

type ErrUnauthorized string

func (e ErrUnauthorized) Error() string { return string(e) }
