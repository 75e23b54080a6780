package eyes

import "github.com/xiaot623/thirdeye/internal/domain"

func init() {
	MustRegister(domain.EyeDescriptor{
		Name:        domain.EyeOverseer,
		Stage:       domain.StageEntry,
		Description: "Navigator. Explains the pipeline and where to start.",
		Entry:       true,
	})
	MustRegister(domain.EyeDescriptor{
		Name:        domain.EyeSharingan,
		Stage:       domain.StageClarify,
		Description: "Detects ambiguity and asks clarification questions.",
	})
	MustRegister(domain.EyeDescriptor{
		Name:        domain.EyePromptHelper,
		Stage:       domain.StageClarify,
		Description: "Rewrites the clarified task into an engineered prompt.",
	})
	MustRegister(domain.EyeDescriptor{
		Name:        domain.EyeJogan,
		Stage:       domain.StageClarify,
		Description: "Confirms intent and scope before planning.",
	})
	MustRegister(domain.EyeDescriptor{
		Name:        domain.EyeRinnegan,
		Stage:       domain.StagePlan,
		Description: "Reviews the implementation plan.",
	})
	MustRegister(domain.EyeDescriptor{
		Name:        domain.EyeMangekyo,
		Stage:       domain.StageImplement,
		Description: "Reviews code, tests and docs of the implementation.",
	})
	MustRegister(domain.EyeDescriptor{
		Name:        domain.EyeTenseigan,
		Stage:       domain.StageCite,
		Description: "Validates evidence and citations for claims.",
	})
	MustRegister(domain.EyeDescriptor{
		Name:        domain.EyeByakugan,
		Stage:       domain.StageApprove,
		Description: "Checks consistency and gives final approval.",
	})
}
