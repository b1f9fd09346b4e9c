package manager

import "github.com/batchline/batchline/internal/apperror"

type GetJobRequest struct {
	ID string
}

func (r GetJobRequest) Validate() *apperror.AppError {
	if r.ID == "" {
		return apperror.New(apperror.BadRequest, "invalid job id")
	}
	return nil
}
