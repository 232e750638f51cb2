package job

// Registry resolves job identities to job records (both in-memory and persistent).
type Registry interface {
	Add(j *Job) error
	Get(id string) (*Job, error)
	List() ([]*Job, error)
}
