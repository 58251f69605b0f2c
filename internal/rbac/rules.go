package rbac

// Default role policy for the delivery engine. Expand as needed.
var RolePermissions = map[string][]string{
	"student": {
		"user:change_password",
		"test:view",
		"submission:take",
		"submission:skip-section",
		"submission:progress",
		"submission:questions",
		"submission:report-own",
		"practice:*",
	},
	"parent": {
		"user:change_password",
		"test:view",
		"submission:report-own",
	},
	"mentor": {
		"user:change_password",
		"test:view",
		"submission:assign",
		"submission:reassign",
		"submission:report",
		"submission:report-own",
	},
	"faculty": {
		"user:change_password",
		"test:view",
		"test:create",
		"test:curate",
		"question:create",
		"submission:assign",
		"submission:reassign",
		"submission:report",
		"submission:report-own",
	},
	"content_developer": {
		"user:change_password",
		"question:create",
		"test:view",
	},
	"admin": {
		"*", // everything
	},
}
