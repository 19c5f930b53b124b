package miniobucket

// This package contains the controller converging MinIO buckets to their MinioBucket objects.
//
// controller.go sets up the controller with the manager. MinioBucket creations, spec changes and resyncs
// are reconciled, deletions are ignored as buckets are never removed. A change to a MinioInstance
// enqueues every MinioBucket referencing it.
//
// handler.go is the entrypoint for the reconciliation logic, provisioner.go holds its steps. Requests are
// processed one at a time and every step runs to completion before the next starts.

// Overall provisioning flow:
//
// 1. Resolve the MinioInstance and its administrative credentials
// 2. Read the bucket user credentials from its secret, creating the secret with random credentials if absent
// 3. Make the bucket and apply versioning, anonymous access, quota and default retention
// 4. Create or replace the bucket-<name> policy
// 5. Create the user or reset its password
// 6. Attach the policy to the user
// 7. Read the live bucket state back
// 8. Optionally probe anonymous read access over S3
// 9. Update the status of the MinioBucket
//
// A failing step stops the pass, marks the MinioBucket not ready with the error as reason and requeues it.
// Nothing applied by earlier steps is rolled back.
